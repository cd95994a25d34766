package journal

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nylssoft/goadaptivefirewall/internal/event"
)

const size_1K = 1024
const size_1M = size_1K * size_1K
const size_1G = size_1M * size_1K

type journal_impl struct {
	mu         sync.Mutex
	filename   string
	db         *sql.DB
	insertStmt *sql.Stmt
	hashStmt   *sql.Stmt
}

func (j *journal_impl) Insert(source string, failure event.SecurityFailure, hash string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.open(); err != nil {
		return false, err
	}
	var exists int
	err := j.hashStmt.QueryRow(hash).Scan(&exists)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, err
	}
	var timeCreated any
	if failure.Timestamp != nil {
		timeCreated = failure.Timestamp.UTC()
	}
	_, err = j.insertStmt.Exec(source, failure.Address, timeCreated, failure.EventID, failure.Username, failure.Domain, hash)
	if err != nil {
		return false, err
	}
	return false, nil
}

func (j *journal_impl) LastTime(source string) (time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.open(); err != nil {
		return time.Time{}, err
	}
	var last sql.NullTime
	err := j.db.QueryRow("SELECT time_created FROM securityevent WHERE source=$1 AND time_created IS NOT NULL ORDER BY time_created DESC LIMIT 1", source).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return last.Time, nil
}

func (j *journal_impl) Count(address string, since time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.open(); err != nil {
		return 0, err
	}
	var cnt int
	err := j.db.QueryRow("SELECT COUNT(*) FROM securityevent WHERE address=$1 AND time_created>=$2", address, since.UTC()).Scan(&cnt)
	return cnt, err
}

func (j *journal_impl) Purge(before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.open(); err != nil {
		return 0, err
	}
	res, err := j.db.Exec("DELETE FROM securityevent WHERE time_created<$1", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (j *journal_impl) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, stmt := range []*sql.Stmt{j.hashStmt, j.insertStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	j.hashStmt = nil
	j.insertStmt = nil
	if j.db != nil {
		j.db.Close()
		j.db = nil
	}
}

func (j *journal_impl) open() error {
	if j.db != nil {
		return nil
	}
	fileInfo, err := os.Stat(j.filename)
	if err == nil && fileInfo.Size() > size_1G {
		return fmt.Errorf("%w: %s", ErrDatabaseTooLarge, j.filename)
	}
	db, err := sql.Open("sqlite3", j.filename)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS securityevent (
			source TEXT,
			address TEXT,
			time_created TIMESTAMP,
			event_id INTEGER,
			user_name TEXT,
			domain_name TEXT,
			hash TEXT)`,
		"CREATE INDEX IF NOT EXISTS securityevent_hash_idx ON securityevent (hash)",
		"CREATE INDEX IF NOT EXISTS securityevent_address_idx ON securityevent (address)",
		"CREATE INDEX IF NOT EXISTS securityevent_source_idx ON securityevent (source, time_created)",
	}
	for _, stmt := range stmts {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return err
		}
	}
	insertStmt, err := db.Prepare("INSERT INTO securityevent (source,address,time_created,event_id,user_name,domain_name,hash) VALUES ($1,$2,$3,$4,$5,$6,$7)")
	if err != nil {
		db.Close()
		return err
	}
	hashStmt, err := db.Prepare("SELECT 1 FROM securityevent WHERE hash=$1")
	if err != nil {
		insertStmt.Close()
		db.Close()
		return err
	}
	j.db = db
	j.insertStmt = insertStmt
	j.hashStmt = hashStmt
	return nil
}

// Returns the hash of a raw event.
func Hash(raw []byte) string {
	hasher := md5.New()
	hasher.Write(raw)
	return hex.EncodeToString(hasher.Sum(nil))
}
