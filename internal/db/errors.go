package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get and HGetAll for a missing key.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexExists is returned by CreateIndex when the name is taken.
	ErrIndexExists = errors.New("db: index already exists")
	// ErrTextSearchUnsupported is returned by SearchText on valkey-search, which has no TEXT fields.
	ErrTextSearchUnsupported = errors.New("db: text search not supported")
)

// Command names recorded in Error.Op.
const (
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpDel         = "DEL"
	OpExists      = "EXISTS"
	OpGet         = "GET"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpScan        = "SCAN"
	OpSet         = "SET"
)

// Error is a failed backend command. Op names the command.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsUnavailable reports whether err came from the backend rather than from a missing key.
func IsUnavailable(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr)
}
