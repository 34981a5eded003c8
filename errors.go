package dbconnector

import (
	"errors"
	"fmt"
)

var ErrUnsupportedEngine = errors.New("unsupported engine")

// ConnectionError reports that the source could not be reached or rejected
// the credentials. Unknown engines are reported the same way.
type ConnectionError struct {
	Engine string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("connection error: %v", e.Err)
	}
	return fmt.Sprintf("%s connection error: %v", e.Engine, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError reports a failed or malformed query.
type QueryError struct {
	Engine string
	Query  string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query error: %v", e.Engine, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

func IsQueryError(err error) bool {
	var target *QueryError
	return errors.As(err, &target)
}
