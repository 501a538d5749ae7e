// Package policy gates every store operation behind an authorization
// predicate.  The default Open policy allows everything, matching a
// fully open backing store; Owner restricts destructive operations to
// the player or host that owns the row.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/room-lobby/internal/repository"
)

// Op identifies a store operation.
type Op string

const (
	OpCreateRoom  Op = "room.create"
	OpFindRoom    Op = "room.find"
	OpDeleteRoom  Op = "room.delete"
	OpAddPlayer   Op = "player.add"
	OpListPlayers Op = "player.list"
	OpRemove      Op = "player.remove"
	OpStartGame   Op = "game.start"
	OpSubscribe   Op = "changes.subscribe"
)

// Request describes the operation being authorized.  RoomID and
// PlayerID name the target rows when known.
type Request struct {
	Op       Op
	RoomID   string
	PlayerID string
}

// Actor is the caller as proven by a player token.
type Actor struct {
	PlayerID string
	RoomID   string
	IsHost   bool
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor carried by ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Policy decides whether a request may proceed.  A nil error allows it;
// a rejection wraps repository.ErrForbidden.
type Policy interface {
	Allow(ctx context.Context, req Request) error
}

// Func adapts a function to Policy.
type Func func(ctx context.Context, req Request) error

// Allow calls f.
func (f Func) Allow(ctx context.Context, req Request) error { return f(ctx, req) }

// Open allows every request.
var Open Policy = Func(func(context.Context, Request) error { return nil })

// Owner allows reads and inserts to anyone, removal of a player only to
// that player or the host of its room, and room deletion or game start
// only to the room host.
var Owner Policy = Func(func(ctx context.Context, req Request) error {
	switch req.Op {
	case OpRemove:
		a, ok := ActorFrom(ctx)
		if !ok {
			return deny(req, "player token required")
		}
		if a.PlayerID == req.PlayerID {
			return nil
		}
		if a.IsHost && req.RoomID != "" && a.RoomID == req.RoomID {
			return nil
		}
		return deny(req, "not the owner of this player")
	case OpDeleteRoom, OpStartGame:
		a, ok := ActorFrom(ctx)
		if !ok {
			return deny(req, "player token required")
		}
		if !a.IsHost || a.RoomID != req.RoomID {
			return deny(req, "host token required")
		}
		return nil
	default:
		return nil
	}
})

func deny(req Request, reason string) error {
	return fmt.Errorf("%s: %s: %w", req.Op, reason, repository.ErrForbidden)
}

// ByName resolves a policy from configuration.  Unknown names fall
// back to Open.
func ByName(name string) Policy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "owner":
		return Owner
	default:
		return Open
	}
}
