package mongocache

import (
	"errors"
	"fmt"
)

// ErrIDChange is returned by Update when the patch carries a different _id.
var ErrIDChange = errors.New("mongocache: update cannot change _id")

// MirrorError describes a mirror write that did not take effect. Mirror failures
// never fail an operation; they reach Logger and Hooks only.
type MirrorError struct {
	Op  string // "set"
	ID  string
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s %q: %v", e.Op, e.ID, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }
