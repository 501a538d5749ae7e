// Package lobby implements the per-client lobby controller: the state
// machine that hosts, joins and leaves rooms and keeps a local roster in
// sync with the shared store by re-reading it on every change event.
package lobby

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/notifier"
	"github.com/iliyamo/room-lobby/internal/repository"
)

// State is the controller's position in the lobby flow.
type State int

const (
	Landing State = iota
	Joining
	Hosting
	InRoom
)

func (s State) String() string {
	switch s {
	case Landing:
		return "landing"
	case Joining:
		return "joining"
	case Hosting:
		return "hosting"
	case InRoom:
		return "in_room"
	default:
		return "unknown"
	}
}

// Store is the subset of the room/player store the controller needs.
// Both store.Store and client.Store satisfy it.
type Store interface {
	CreateRoom(ctx context.Context, code, hostName string, maxPlayers int) (model.Room, error)
	FindRoomByCode(ctx context.Context, code string) (model.Room, error)
	AddPlayer(ctx context.Context, roomID, name string, isHost bool) (model.Player, error)
	ListPlayers(ctx context.Context, roomID string) ([]model.Player, error)
	RemovePlayer(ctx context.Context, playerID string) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// GameLauncher takes over once the host starts the game.
type GameLauncher interface {
	StartGame(ctx context.Context, room model.Room, roster []model.Player) error
}

// LauncherFunc adapts a function to GameLauncher.
type LauncherFunc func(ctx context.Context, room model.Room, roster []model.Player) error

func (f LauncherFunc) StartGame(ctx context.Context, room model.Room, roster []model.Player) error {
	return f(ctx, room, roster)
}

const (
	DefaultCallTimeout = 5 * time.Second
	MinPlayersToStart  = 2
)

// Options tunes a controller.  Zero values select the defaults.
type Options struct {
	MaxPlayers  int
	CallTimeout time.Duration
	// CodeRetries is how many extra codes Host tries after a collision.
	// Zero surfaces the first collision as repository.ErrCodeTaken.
	CodeRetries int
	Codes       CodeGenerator
	Listener    Listener
	Launcher    GameLauncher
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = model.DefaultMaxPlayers
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.CodeRetries < 0 {
		o.CodeRetries = 0
	}
	if o.Codes == nil {
		o.Codes = RandomCodes(DefaultCodeLength)
	}
	if o.Listener == nil {
		o.Listener = ListenerFuncs{}
	}
	if o.Launcher == nil {
		o.Launcher = LauncherFunc(func(context.Context, model.Room, []model.Player) error { return nil })
	}
	return o
}

// View is a snapshot of the controller state.
type View struct {
	State  State
	Room   model.Room
	Self   model.Player
	Roster []model.Player
}

// Controller is one client's view of the lobby.  Actions block the
// calling goroutine; change events are handled on a goroutine owned by
// the active subscription.
type Controller struct {
	store Store
	feed  notifier.Subscriber
	opts  Options
	log   *logrus.Entry

	mu      sync.Mutex
	state   State
	room    model.Room
	self    model.Player
	roster  []model.Player
	sub     notifier.Subscription
	cancel  context.CancelFunc
	roomGen uint64
	closed  bool
	// refreshSeq numbers roster reads in the order they were issued;
	// appliedSeq is the newest one written to roster.
	refreshSeq uint64
	appliedSeq uint64
}

// New builds a controller in the Landing state.
func New(store Store, feed notifier.Subscriber, opts Options) *Controller {
	return &Controller{
		store: store,
		feed:  feed,
		opts:  opts.withDefaults(),
		log:   logrus.WithField("component", "lobby"),
	}
}

// View returns a copy of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:  c.state,
		Room:   c.room,
		Self:   c.self,
		Roster: append([]model.Player(nil), c.roster...),
	}
}

// Host creates a room with a fresh code and joins it as host.
func (c *Controller) Host(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		c.opts.Listener.Error(ErrNameRequired)
		return ErrNameRequired
	}
	if err := c.begin(Hosting); err != nil {
		return err
	}

	room, err := c.createRoom(ctx, name)
	if err != nil {
		return c.fail(classify("host", err))
	}
	callCtx, cancel := c.callCtx(ctx)
	self, err := c.store.AddPlayer(callCtx, room.ID, name, true)
	cancel()
	if err != nil {
		c.discardRoom(ctx, room)
		return c.fail(classify("host", err))
	}
	if err := c.enter(ctx, room, self); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code, "player_id": self.ID}).Info("hosting room")
	return nil
}

func (c *Controller) createRoom(ctx context.Context, name string) (model.Room, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.CodeRetries; attempt++ {
		code, err := c.opts.Codes()
		if err != nil {
			return model.Room{}, err
		}
		callCtx, cancel := c.callCtx(ctx)
		room, err := c.store.CreateRoom(callCtx, code, name, c.opts.MaxPlayers)
		cancel()
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, repository.ErrCodeTaken) {
			return model.Room{}, err
		}
		c.log.WithField("code", code).Warn("room code collision")
		lastErr = err
	}
	return model.Room{}, lastErr
}

// discardRoom deletes a room whose host could not be inserted.  If this
// fails too the room stays behind without players until the server
// reaps it.
func (c *Controller) discardRoom(ctx context.Context, room model.Room) {
	callCtx, cancel := c.callCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := c.store.DeleteRoom(callCtx, room.ID); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
		c.log.WithField("room_id", room.ID).WithError(err).Warn("orphan room left behind")
	}
}

// Join enters an existing room by code.  Codes are matched case
// insensitively; capacity is enforced atomically by the store.
func (c *Controller) Join(ctx context.Context, name, code string) error {
	name = strings.TrimSpace(name)
	code = NormalizeCode(code)
	if name == "" {
		c.opts.Listener.Error(ErrNameRequired)
		return ErrNameRequired
	}
	if code == "" {
		c.opts.Listener.Error(ErrCodeRequired)
		return ErrCodeRequired
	}
	if err := c.begin(Joining); err != nil {
		return err
	}

	callCtx, cancel := c.callCtx(ctx)
	room, err := c.store.FindRoomByCode(callCtx, code)
	cancel()
	if err != nil {
		return c.fail(classify("join", err))
	}
	callCtx, cancel = c.callCtx(ctx)
	self, err := c.store.AddPlayer(callCtx, room.ID, name, false)
	cancel()
	if err != nil {
		return c.fail(classify("join", err))
	}
	if err := c.enter(ctx, room, self); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code, "player_id": self.ID}).Info("joined room")
	return nil
}

// Leave removes the local player and, for the host, deletes the room.
// Local state returns to Landing even when the store calls fail.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Joining || c.state == Hosting {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state != InRoom {
		c.mu.Unlock()
		return nil
	}
	room, self := c.room, c.self
	release := c.resetLocked()
	c.mu.Unlock()
	release()
	c.notifyLanding()

	var errs []error
	callCtx, cancel := c.callCtx(ctx)
	if err := c.store.RemovePlayer(callCtx, self.ID); err != nil && !errors.Is(err, repository.ErrPlayerNotFound) {
		errs = append(errs, err)
	}
	cancel()
	if self.IsHost {
		callCtx, cancel = c.callCtx(ctx)
		if err := c.store.DeleteRoom(callCtx, room.ID); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
			errs = append(errs, err)
		}
		cancel()
	}
	c.log.WithFields(logrus.Fields{"room_id": room.ID, "player_id": self.ID, "host": self.IsHost}).Info("left room")
	if len(errs) > 0 {
		err := classify("leave", errors.Join(errs...))
		c.opts.Listener.Error(err)
		return err
	}
	return nil
}

// StartGame hands the room over to the launcher.  Only the host may
// start and the roster must hold at least two players.
func (c *Controller) StartGame(ctx context.Context) error {
	c.mu.Lock()
	if c.state != InRoom {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	if !c.self.IsHost {
		c.mu.Unlock()
		c.opts.Listener.Error(ErrNotHost)
		return ErrNotHost
	}
	if n := len(c.roster); n < MinPlayersToStart {
		c.mu.Unlock()
		err := &NotEnoughPlayersError{Need: MinPlayersToStart - n}
		c.opts.Listener.Error(err)
		return err
	}
	room := c.room
	roster := append([]model.Player(nil), c.roster...)
	c.mu.Unlock()

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.opts.Launcher.StartGame(callCtx, room, roster); err != nil {
		err = classify("start game", err)
		c.opts.Listener.Error(err)
		return err
	}
	c.log.WithFields(logrus.Fields{"room_id": room.ID, "players": len(roster)}).Info("game started")
	return nil
}

// Refresh re-reads the roster of the active room.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state != InRoom {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	gen := c.roomGen
	c.mu.Unlock()
	return c.refresh(ctx, gen)
}

// Close releases the subscription without touching the store.  The
// controller cannot be used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	release := c.resetLocked()
	c.mu.Unlock()
	release()
	return nil
}

func (c *Controller) begin(next State) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Landing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = next
	c.mu.Unlock()
	c.opts.Listener.StateChanged(next)
	return nil
}

// fail reverts an in-flight action to Landing and reports err.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = Landing
	c.mu.Unlock()
	c.opts.Listener.StateChanged(Landing)
	c.opts.Listener.Error(err)
	return err
}

// enter subscribes to the room, switches to InRoom and loads the
// roster.  The subscription is opened before the first roster read so
// no change in between is missed.
func (c *Controller) enter(ctx context.Context, room model.Room, self model.Player) error {
	subCtx, cancelSub := context.WithCancel(context.Background())
	sub, err := c.feed.Subscribe(subCtx, room.ID)
	if err != nil {
		cancelSub()
		c.undoEnter(ctx, room, self)
		return c.fail(classify("subscribe", err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Close()
		cancelSub()
		c.undoEnter(ctx, room, self)
		return ErrClosed
	}
	c.state = InRoom
	c.room = room
	c.self = self
	c.roster = []model.Player{self}
	c.sub = sub
	c.cancel = cancelSub
	c.roomGen++
	gen := c.roomGen
	c.mu.Unlock()

	go c.loop(gen, sub)
	c.opts.Listener.StateChanged(InRoom)
	if err := c.refresh(ctx, gen); err != nil {
		c.log.WithField("room_id", room.ID).WithError(err).Warn("initial roster load failed")
	}
	return nil
}

func (c *Controller) undoEnter(ctx context.Context, room model.Room, self model.Player) {
	callCtx, cancel := c.callCtx(context.WithoutCancel(ctx))
	defer cancel()
	_ = c.store.RemovePlayer(callCtx, self.ID)
	if self.IsHost {
		_ = c.store.DeleteRoom(callCtx, room.ID)
	}
}

// loop consumes change events for one room generation.  If the feed
// ends while the client is still in the room, one last read settles
// whether the room is gone.
func (c *Controller) loop(gen uint64, sub notifier.Subscription) {
	for ev := range sub.Events() {
		if !c.current(gen) {
			return
		}
		switch {
		case ev.IsRoomDeleted():
			c.roomClosed(gen)
			return
		case ev.Table == notifier.TablePlayers:
			_ = c.refresh(context.Background(), gen)
		}
	}
	if c.current(gen) {
		c.log.WithField("room_id", c.View().Room.ID).Warn("change feed ended while in room")
		_ = c.refresh(context.Background(), gen)
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == InRoom && c.roomGen == gen
}

// refresh replaces the local roster with a fresh read.  A read is
// dropped when the client left the room meanwhile or when a read issued
// later was already applied.  A roster without the local player means
// the room is gone even if its delete event never arrived.
func (c *Controller) refresh(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	roomID := c.room.ID
	c.refreshSeq++
	seq := c.refreshSeq
	c.mu.Unlock()

	callCtx, cancel := c.callCtx(ctx)
	roster, err := c.store.ListPlayers(callCtx, roomID)
	cancel()

	c.mu.Lock()
	if c.roomGen != gen || c.state != InRoom || seq <= c.appliedSeq {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		err = classify("refresh", err)
		c.opts.Listener.Error(err)
		return err
	}
	c.appliedSeq = seq
	if !hasPlayer(roster, c.self.ID) {
		c.closeRoomLocked()
		return nil
	}
	model.SortRoster(roster)
	c.roster = roster
	snapshot := append([]model.Player(nil), roster...)
	c.mu.Unlock()
	c.opts.Listener.RosterChanged(snapshot)
	return nil
}

// roomClosed handles the room disappearing underneath the client.
func (c *Controller) roomClosed(gen uint64) {
	c.mu.Lock()
	if c.roomGen != gen || c.state != InRoom {
		c.mu.Unlock()
		return
	}
	c.closeRoomLocked()
}

// closeRoomLocked resets to Landing and reports the closed room.  It
// is called with c.mu held and returns with it released.
func (c *Controller) closeRoomLocked() {
	roomID := c.room.ID
	release := c.resetLocked()
	c.mu.Unlock()
	release()
	c.log.WithField("room_id", roomID).Info("room closed by host")
	c.notifyLanding()
	c.opts.Listener.Notice(NoticeRoomClosed)
}

func hasPlayer(roster []model.Player, id string) bool {
	for _, p := range roster {
		if p.ID == id {
			return true
		}
	}
	return false
}

// resetLocked returns to Landing and invalidates the room generation.
// The returned func releases the subscription and must be called
// without c.mu held.
func (c *Controller) resetLocked() func() {
	sub, cancel := c.sub, c.cancel
	c.state = Landing
	c.room = model.Room{}
	c.self = model.Player{}
	c.roster = nil
	c.sub = nil
	c.cancel = nil
	c.roomGen++
	return func() {
		if sub != nil {
			_ = sub.Close()
		}
		if cancel != nil {
			cancel()
		}
	}
}

func (c *Controller) notifyLanding() {
	c.opts.Listener.StateChanged(Landing)
	c.opts.Listener.RosterChanged(nil)
}

func (c *Controller) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}
