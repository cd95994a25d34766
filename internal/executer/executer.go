package executer

import "time"

// Runs external commands and returns their combined output.
type Executer interface {
	Exec(cmdName string, args ...string) ([]byte, error)
}

// Creates a new executer. Commands running longer than timeout are killed,
// a non-positive timeout disables the limit.
func NewExecuter(timeout time.Duration) Executer {
	var e executer_impl
	e.timeout = timeout
	return &e
}
