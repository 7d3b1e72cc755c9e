package main

import (
	"sync"
	"time"
)

// Registry owns every live room, keyed by password. Creation, deletion,
// and the connection-to-room index share one critical section; all
// other room traffic takes only the room's own lock, so rooms stay
// independent of each other.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[string]*Room // connection id -> the room it joined
}

func newRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]*Room),
	}
}

// Create reserves the key and the room in one step, so two racing
// creates with the same key can't both win.
func (reg *Registry) Create(cfg *Config, key, name, hostID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.rooms[key]; ok {
		return nil, ErrKeyTaken
	}

	room := newRoom(key, name, hostID)
	reg.rooms[key] = room

	logf(cfg, "ROOMS: Created room %q", name)

	return room, nil
}

func (reg *Registry) Get(key string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[key]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Join adds the connection to the room under the key. A connection
// belongs to at most one room, so a second join while a membership is
// live is silently ignored. The registry lock is held only to resolve
// the room and reserve the membership slot; the room does its own
// admission under its own lock, so joins into distinct rooms never
// serialize. Rooms that left the registry between the lookup and the
// admission reject the join themselves via their ended state.
func (reg *Registry) Join(cfg *Config, key string, c *Client, name, color string) (*Room, error) {
	reg.mu.Lock()

	if reg.byConn[c.id] != nil {
		reg.mu.Unlock()
		return nil, nil
	}

	room, ok := reg.rooms[key]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	reg.byConn[c.id] = room
	reg.mu.Unlock()

	if err := room.Join(cfg, c, name, color); err != nil {
		reg.mu.Lock()
		if reg.byConn[c.id] == room {
			delete(reg.byConn, c.id)
		}
		reg.mu.Unlock()
		return nil, err
	}

	return room, nil
}

// Leave removes the connection from whichever room it joined, deleting
// the room if that empties it. Also sweeps any room this connection
// created but never joined, so its key frees up. Safe to call for
// connections that never joined anything.
func (reg *Registry) Leave(cfg *Config, c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room := reg.byConn[c.id]
	delete(reg.byConn, c.id)

	if room != nil && room.Leave(c.id) && reg.rooms[room.key] == room {
		delete(reg.rooms, room.key)
		logf(cfg, "ROOMS: Deleted empty room %q after %s", room.name, room.age())
	}

	for key, r := range reg.rooms {
		if r.HostID() == c.id && r.endIfEmpty() {
			delete(reg.rooms, key)
			logf(cfg, "ROOMS: Deleted unused room %q after %s", r.name, r.age())
		}
	}
}

// End lets the host end the room: members are notified, then the key
// is released. Non-host callers change nothing.
func (reg *Registry) End(cfg *Config, key, connID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[key]
	if !ok {
		return ErrRoomNotFound
	}

	members, ended := room.End(connID)
	if !ended {
		return nil
	}

	delete(reg.rooms, key)
	for _, id := range members {
		if reg.byConn[id] == room {
			delete(reg.byConn, id)
		}
	}

	logf(cfg, "ROOMS: Room %q ended by host after %s", room.name, room.age())

	return nil
}

// reapIdle ends every room whose last activity predates the cutoff.
// Members are notified and disconnected before the key is released, so
// a racing join against the doomed room fails rather than landing in
// an unregistered room.
func (reg *Registry) reapIdle(cfg *Config, cutoff time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for key, room := range reg.rooms {
		if !room.LastActive().Before(cutoff) {
			continue
		}

		room.closeAll()

		delete(reg.rooms, key)
		for id, r := range reg.byConn {
			if r == room {
				delete(reg.byConn, id)
			}
		}

		logf(cfg, "ROOMS: Reaped idle room %q after %s", room.name, room.age())
	}
}

// reaperLoop periodically ends rooms that have been idle longer than
// the configured session timeout.
func (reg *Registry) reaperLoop(cfg *Config) {
	ticker := time.NewTicker(cfg.sessionTimeout / 2)
	for range ticker.C {
		reg.reapIdle(cfg, time.Now().Add(-cfg.sessionTimeout))
	}
}
