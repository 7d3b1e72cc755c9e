package main

import (
	"sync"
	"time"
)

// Player holds the data we store server-side for one room member.
// selectedCell and the reveal bookkeeping never leave the server except
// through an accepted reveal.
type Player struct {
	id    string
	name  string
	color string

	selectedCell   string          // empty until the player picks
	revealedTo     map[string]bool // player ids granted a look at selectedCell
	pendingReveals map[string]bool // requester ids awaiting this player's response
}

// Room is one game session. All mutable state is guarded by mu; rooms
// never share state, so two rooms never contend on a lock.
type Room struct {
	key    string // the password; unique while the room exists
	name   string
	hostID string // the creator; start/end authority, never reassigned

	mu         sync.RWMutex
	started    bool
	ended      bool               // set when the room leaves the registry; stale pointers reject joins
	players    []*Player          // join order, used for member lists
	clients    map[string]*Client // player id -> live connection
	createdAt  time.Time
	lastActive time.Time
}

func newRoom(key, name, hostID string) *Room {
	now := time.Now()
	return &Room{
		key:        key,
		name:       name,
		hostID:     hostID,
		clients:    make(map[string]*Client),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *Room) HostID() string {
	return r.hostID
}

func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.players) == 0
}

func (r *Room) LastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastActive
}

func (r *Room) age() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return time.Since(r.createdAt).Round(time.Second)
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *Room) memberListLocked() []Member {
	members := make([]Member, 0, len(r.players))
	for _, p := range r.players {
		members = append(members, Member{
			ID:          p.id,
			Name:        p.name,
			Color:       p.color,
			HasSelected: p.selectedCell != "",
		})
	}
	return members
}

// sendLocked queues a message for one member's connection. A missing,
// closed, or slow connection is not an error; the unreachable one is
// dropped from the client set so broadcasts stop piling up behind it.
func (r *Room) sendLocked(id string, msg any) {
	c, ok := r.clients[id]
	if !ok {
		return
	}

	if !c.trySend(msg) {
		delete(r.clients, id)
		c.closeSend()
	}
}

func (r *Room) broadcastLocked(msg any) {
	for id := range r.clients {
		r.sendLocked(id, msg)
	}
}

// Join adds the connection as a member and acks it before the
// room-wide membership broadcast, so the joiner always sees its own
// ack first.
func (r *Room) Join(cfg *Config, c *Client, name, color string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return ErrRoomNotFound
	}
	if r.started {
		return ErrGameStarted
	}

	r.lastActive = time.Now()

	r.players = append(r.players, &Player{
		id:             c.id,
		name:           name,
		color:          color,
		revealedTo:     make(map[string]bool),
		pendingReveals: make(map[string]bool),
	})
	r.clients[c.id] = c

	r.sendLocked(c.id, JoinedMessage{
		Type:   "joined",
		Name:   r.name,
		IsHost: r.hostID == c.id,
	})

	r.broadcastLocked(MemberListMessage{
		Type:    "member_list_update",
		Members: r.memberListLocked(),
	})

	logf(cfg, "ROOMS: Player %q joined room %q", name, r.name)

	return nil
}

// Leave removes the member, notifies whoever remains, and reports
// whether the room is now empty. Unknown ids are a no-op.
func (r *Room) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := r.players[:0]
	changed := false
	for _, p := range r.players {
		if p.id == id {
			changed = true
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst

	delete(r.clients, id)

	if len(r.players) == 0 {
		// The registry deletes emptied rooms; marking the room ended in
		// the same critical section keeps a racing join from landing in
		// a room that is about to vanish.
		r.ended = true
		return true
	}

	if changed {
		r.lastActive = time.Now()
		r.broadcastLocked(MemberListMessage{
			Type:    "member_list_update",
			Members: r.memberListLocked(),
		})
	}

	return false
}

// Start moves the room from lobby to started. Only the host's action
// has effect; anyone else's is silently ignored, as is a repeat start.
func (r *Room) Start(cfg *Config, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != r.hostID || r.started {
		return
	}

	r.started = true
	r.lastActive = time.Now()

	r.broadcastLocked(RoomStartedMessage{Type: "room_started"})

	logf(cfg, "ROOMS: Room %q started", r.name)
}

// End notifies all members and empties the room, returning the member
// ids so the registry can drop its index entries. Non-host callers get
// (nil, false) and nothing happens.
func (r *Room) End(id string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != r.hostID {
		return nil, false
	}

	r.ended = true

	r.broadcastLocked(RoomEndedMessage{Type: "room_ended"})

	members := make([]string, 0, len(r.players))
	for _, p := range r.players {
		members = append(members, p.id)
	}

	// Connections outlive the room; they just stop being members.
	r.players = nil
	clear(r.clients)

	return members, true
}

// SelectCell sets or clears (empty cell id) the member's private
// selection. No geometry validation: the board is a presentation
// concern, and overwriting is always allowed, started or not.
func (r *Room) SelectCell(id, cellID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.playerLocked(id)
	if p == nil {
		return
	}

	p.selectedCell = cellID
	r.lastActive = time.Now()

	r.broadcastLocked(PlayerSelectedMessage{
		Type:        "player_has_selected",
		PlayerID:    id,
		HasSelected: cellID != "",
	})
}

// RequestReveal records a pending request on the target and notifies
// the target only. Self-requests and requests against non-members are
// no-ops. Multiple requesters may be pending against the same target.
func (r *Room) RequestReveal(requesterID, targetID string) {
	if requesterID == targetID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playerLocked(requesterID) == nil {
		return
	}

	target := r.playerLocked(targetID)
	if target == nil {
		return
	}

	target.pendingReveals[requesterID] = true
	r.lastActive = time.Now()

	r.sendLocked(targetID, RevealRequestedMessage{
		Type:        "reveal_requested",
		RequesterID: requesterID,
	})
}

// RespondReveal resolves a pending request against the responding
// member's own state; a response with no matching pending request is
// inert, so a resolved request never fires twice. Accepting grants the
// requester a one-time snapshot of the current cell; rejecting is
// silent. A requester that has since disconnected just doesn't get the
// notification.
func (r *Room) RespondReveal(cfg *Config, targetID, requesterID string, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.playerLocked(targetID)
	if target == nil {
		return
	}

	if !target.pendingReveals[requesterID] {
		return
	}
	delete(target.pendingReveals, requesterID)

	if !accepted {
		return
	}

	target.revealedTo[requesterID] = true
	r.lastActive = time.Now()

	r.sendLocked(requesterID, RevealGrantedMessage{
		Type:     "reveal_granted",
		TargetID: targetID,
		CellID:   target.selectedCell,
	})

	logf(cfg, "ROOMS: Player %q granted a reveal in room %q", target.name, r.name)
}

// endIfEmpty marks a memberless room ended so late joins can't land in
// it, reporting whether it did.
func (r *Room) endIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) > 0 {
		return false
	}

	r.ended = true
	return true
}

// closeAll notifies and disconnects every member (used by the reaper).
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ended = true

	r.broadcastLocked(RoomEndedMessage{Type: "room_ended"})

	for id, c := range r.clients {
		delete(r.clients, id)
		c.closeSend()
	}
	r.players = nil
}
