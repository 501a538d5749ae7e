package lobby

import (
	"errors"
	"fmt"

	"github.com/iliyamo/room-lobby/internal/repository"
)

var (
	ErrNameRequired = errors.New("lobby: player name is required")
	ErrCodeRequired = errors.New("lobby: room code is required")
	ErrActionFailed = errors.New("lobby: action failed, please try again")
	ErrNotHost      = errors.New("lobby: only the host can start the game")
	ErrNotInRoom    = errors.New("lobby: not in a room")
	ErrBusy         = errors.New("lobby: another action is in progress")
	ErrClosed       = errors.New("lobby: controller closed")
)

// NotEnoughPlayersError reports how many more players are needed
// before the game can start.
type NotEnoughPlayersError struct {
	Need int
}

func (e *NotEnoughPlayersError) Error() string {
	if e.Need == 1 {
		return "lobby: need 1 more player to start"
	}
	return fmt.Sprintf("lobby: need %d more players to start", e.Need)
}

// classify keeps domain outcomes the user can act on and folds every
// other store failure into ErrActionFailed, preserving the cause.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrPlayerNotFound),
		errors.Is(err, repository.ErrRoomFull),
		errors.Is(err, repository.ErrCodeTaken),
		errors.Is(err, repository.ErrHostExists),
		errors.Is(err, repository.ErrForbidden):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrActionFailed, err)
	}
}
