package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/room-lobby/internal/model"
)

// MemoryRepo implements Rooms and Players in process memory.  It keeps
// the same invariants as the MySQL tables: unique codes, cascade delete,
// default capacity, single host and atomic capacity checks.  It backs
// STORE_DRIVER=memory and the package tests of the upper layers.
type MemoryRepo struct {
	mu      sync.Mutex
	rooms   map[string]model.Room
	codes   map[string]string // code -> room id
	players map[string]model.Player
	now     func() time.Time
	last    time.Time
}

// NewMemoryRepo returns an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rooms:   make(map[string]model.Room),
		codes:   make(map[string]string),
		players: make(map[string]model.Player),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Rooms exposes the repository through the Rooms contract.
func (m *MemoryRepo) Rooms() Rooms { return memoryRooms{m} }

// Players exposes the repository through the Players contract.
func (m *MemoryRepo) Players() Players { return memoryPlayers{m} }

// tick returns a strictly increasing timestamp so that join order is
// total even when two inserts land within the clock resolution.
func (m *MemoryRepo) tick() time.Time {
	t := m.now().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *MemoryRepo) roster(roomID string) []model.Player {
	out := []model.Player{}
	for _, p := range m.players {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	model.SortRoster(out)
	return out
}

type memoryRooms struct{ m *MemoryRepo }

func (r memoryRooms) Create(_ context.Context, room *model.Room) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, taken := r.m.codes[room.Code]; taken {
		return ErrCodeTaken
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.MaxPlayers <= 0 {
		room.MaxPlayers = model.StorageDefaultMaxPlayers
	}
	now := r.m.tick()
	room.CreatedAt, room.UpdatedAt = now, now
	r.m.rooms[room.ID] = *room
	r.m.codes[room.Code] = room.ID
	return nil
}

func (r memoryRooms) GetByID(_ context.Context, id string) (model.Room, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	room, ok := r.m.rooms[id]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (r memoryRooms) GetByCode(_ context.Context, code string) (model.Room, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	id, ok := r.m.codes[code]
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return r.m.rooms[id], nil
}

func (r memoryRooms) Delete(_ context.Context, id string) (model.Room, []model.Player, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	room, ok := r.m.rooms[id]
	if !ok {
		return model.Room{}, nil, ErrRoomNotFound
	}
	removed := r.m.roster(id)
	for _, p := range removed {
		delete(r.m.players, p.ID)
	}
	delete(r.m.rooms, id)
	delete(r.m.codes, room.Code)
	return room, removed, nil
}

func (r memoryRooms) DeleteIfEmpty(_ context.Context, id string) (model.Room, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	room, ok := r.m.rooms[id]
	if !ok {
		return model.Room{}, false, ErrRoomNotFound
	}
	if len(r.m.roster(id)) > 0 {
		return room, false, nil
	}
	delete(r.m.rooms, id)
	delete(r.m.codes, room.Code)
	return room, true, nil
}

type memoryPlayers struct{ m *MemoryRepo }

func (r memoryPlayers) Create(_ context.Context, p *model.Player) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	room, ok := r.m.rooms[p.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	roster := r.m.roster(p.RoomID)
	if _, hasHost := model.HostOf(roster); p.IsHost && hasHost {
		return ErrHostExists
	}
	if len(roster) >= room.MaxPlayers {
		return ErrRoomFull
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.JoinedAt = r.m.tick()
	r.m.players[p.ID] = *p
	return nil
}

func (r memoryPlayers) GetByID(_ context.Context, id string) (model.Player, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.players[id]
	if !ok {
		return model.Player{}, ErrPlayerNotFound
	}
	return p, nil
}

func (r memoryPlayers) ListByRoom(_ context.Context, roomID string) ([]model.Player, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.roster(roomID), nil
}

func (r memoryPlayers) Delete(_ context.Context, id string) (model.Player, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.players[id]
	if !ok {
		return model.Player{}, ErrPlayerNotFound
	}
	delete(r.m.players, id)
	return p, nil
}
