package journal

import (
	"errors"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/event"
)

// Stores processed security failures in a sqlite database.
//
// Every failure is stored together with the hash of its raw event. A failure with an already
// stored hash is skipped, so events exported more than once are processed only once.
//
// The database is opened on first use. Use NewJournal to create a new journal.
type Journal interface {
	// Inserts the failure read from the source. Returns true if a failure with the same hash is already stored.
	Insert(source string, failure event.SecurityFailure, hash string) (bool, error)
	// Returns the creation time of the newest failure stored for the source,
	// the zero time if there is none.
	LastTime(source string) (time.Time, error)
	// Returns the number of stored failures for the address since the specified time.
	Count(address string, since time.Time) (int, error)
	// Deletes all failures created before the specified time and returns the number of deleted rows.
	Purge(before time.Time) (int64, error)
	// Closes the database.
	Close()
}

var ErrDatabaseTooLarge = errors.New("database file is too large")

// Creates a new journal for the specified sqlite database file.
func NewJournal(filename string) Journal {
	var j journal_impl
	j.filename = filename
	return &j
}
