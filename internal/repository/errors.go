// Package repository defines the persistence contracts for rooms and
// players together with the sentinel errors shared by every
// implementation. These sentinel values allow higher layers such as
// the store, the lobby controller and the HTTP handlers to distinguish
// between failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrForbidden is returned when the access policy rejects an
// operation. Handlers should translate this into an HTTP 403
// response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is the parent of every uniqueness or invariant
// violation. Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

var (
	// ErrRoomNotFound is returned when no room matches an id or code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when no player matches an id.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrCodeTaken is returned when a room code already exists.
	ErrCodeTaken = conflict("room code already exists")
	// ErrRoomFull is returned when a room already holds max_players rows.
	ErrRoomFull = conflict("room full")
	// ErrHostExists is returned when a second host is added to a room.
	ErrHostExists = conflict("room already has a host")
)

type conflictError struct{ msg string }

func conflict(msg string) error { return &conflictError{msg: msg} }

func (e *conflictError) Error() string { return e.msg }

// Is lets errors.Is(err, ErrConflict) match every conflict sentinel.
func (e *conflictError) Is(target error) bool { return target == ErrConflict }
