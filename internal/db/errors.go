package db

import (
	"errors"

	"github.com/fuego-app/fuego/internal/domain"
)

// ErrKeyNotFound is returned by KVStore.Get for a missing key.
var ErrKeyNotFound = errors.New("db: key not found")

// Op names the failing command or statement in an Error.
const (
	OpConnect = "CONNECT"
	OpPing    = "PING"
	OpGet     = "GET"
	OpSet     = "SET"
	OpSelect  = "SELECT"
	OpInsert  = "INSERT"
	OpUpdate  = "UPDATE"
)

// Error tags a driver error with the operation that produced it. Callers match
// the wrapped cause with errors.Is; only logs see the text. Every Error also
// matches domain.ErrUpstream.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Is reports store failures as upstream failures.
func (e *Error) Is(target error) bool { return target == domain.ErrUpstream }
