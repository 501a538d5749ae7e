package lobby

import "github.com/iliyamo/room-lobby/internal/model"

// Notice is an informational message that is not an error.
type Notice string

const NoticeRoomClosed Notice = "room closed"

// Listener observes a controller.  Callbacks may arrive from the
// caller goroutine and from the subscription goroutine, so
// implementations must be safe for concurrent use.  Callbacks run
// without the controller lock held and may call View.
type Listener interface {
	StateChanged(State)
	RosterChanged([]model.Player)
	Notice(Notice)
	Error(error)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnState  func(State)
	OnRoster func([]model.Player)
	OnNotice func(Notice)
	OnError  func(error)
}

func (l ListenerFuncs) StateChanged(s State) {
	if l.OnState != nil {
		l.OnState(s)
	}
}

func (l ListenerFuncs) RosterChanged(r []model.Player) {
	if l.OnRoster != nil {
		l.OnRoster(r)
	}
}

func (l ListenerFuncs) Notice(n Notice) {
	if l.OnNotice != nil {
		l.OnNotice(n)
	}
}

func (l ListenerFuncs) Error(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}
