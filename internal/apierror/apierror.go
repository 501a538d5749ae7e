// Package apierror maps store errors to HTTP statuses and stable error
// codes, and back.  The server writes {"error": msg, "code": code}; the
// remote client turns the code into the same sentinel so errors.Is
// works identically on both sides of the wire.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/iliyamo/room-lobby/internal/repository"
	"github.com/iliyamo/room-lobby/internal/store"
)

const (
	CodeInvalidInput     = "invalid_input"
	CodeRoomNotFound     = "room_not_found"
	CodePlayerNotFound   = "player_not_found"
	CodeRoomFull         = "room_full"
	CodeCodeTaken        = "code_taken"
	CodeHostExists       = "host_exists"
	CodeForbidden        = "forbidden"
	CodeNotEnoughPlayers = "not_enough_players"
	CodeTimeout          = "timeout"
	CodeInternal         = "internal"
)

// Body is the JSON error envelope.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Need  int    `json:"need,omitempty"`
}

var table = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{repository.ErrRoomNotFound, http.StatusNotFound, CodeRoomNotFound},
	{repository.ErrPlayerNotFound, http.StatusNotFound, CodePlayerNotFound},
	{repository.ErrRoomFull, http.StatusConflict, CodeRoomFull},
	{repository.ErrCodeTaken, http.StatusConflict, CodeCodeTaken},
	{repository.ErrHostExists, http.StatusConflict, CodeHostExists},
	{repository.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
}

// FromError returns the status and body for err.  Unknown errors map to
// 500 with a generic message.
func FromError(err error) (int, Body) {
	for _, row := range table {
		if errors.Is(err, row.err) {
			return row.status, Body{Error: row.err.Error(), Code: row.code}
		}
	}
	return http.StatusInternalServerError, Body{Error: "internal error", Code: CodeInternal}
}

// ToError returns the sentinel for a code, or nil when the code is not
// known.
func ToError(code string) error {
	for _, row := range table {
		if row.code == code {
			return row.err
		}
	}
	return nil
}
