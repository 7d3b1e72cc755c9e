package main

import (
	"testing"
)

func testConfig() *Config {
	return &Config{}
}

func newTestClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan any, 32),
	}
}

func recvMessage(t *testing.T, c *Client) any {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	default:
		t.Fatal("expected a queued message")
	}

	return nil
}

func drainMessages(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// setupLobby creates a room with a host and one guest joined, with all
// join-time messages drained.
func setupLobby(t *testing.T) (*Config, *Registry, *Room, *Client, *Client) {
	t.Helper()

	cfg := testConfig()
	reg := newRegistry()

	host := newTestClient("conn-host")
	guest := newTestClient("conn-guest")

	if _, err := reg.Create(cfg, "hunt2", "Cellar", host.id); err != nil {
		t.Fatalf("create: %v", err)
	}

	room, err := reg.Join(cfg, "hunt2", host, "Alice", "red")
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	if _, err := reg.Join(cfg, "hunt2", guest, "Bob", "blue"); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	drainMessages(host)
	drainMessages(guest)

	return cfg, reg, room, host, guest
}

func TestJoinAckPrecedesMemberList(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry()

	host := newTestClient("conn-host")
	if _, err := reg.Create(cfg, "attic", "Attic", host.id); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Join(cfg, "attic", host, "Alice", "red"); err != nil {
		t.Fatalf("join: %v", err)
	}

	joined, ok := recvMessage(t, host).(JoinedMessage)
	if !ok {
		t.Fatal("first message to joiner should be the joined ack")
	}
	if !joined.IsHost {
		t.Error("room creator should join as host")
	}
	if joined.Name != "Attic" {
		t.Errorf("joined ack carries room name %q, want %q", joined.Name, "Attic")
	}

	list, ok := recvMessage(t, host).(MemberListMessage)
	if !ok {
		t.Fatal("second message to joiner should be the member list")
	}
	if len(list.Members) != 1 || list.Members[0].Name != "Alice" {
		t.Errorf("unexpected member list: %+v", list.Members)
	}
}

func TestJoinAfterStartRejected(t *testing.T) {
	cfg, reg, _, host, _ := setupLobby(t)

	late := newTestClient("conn-late")

	room, err := reg.Get("hunt2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	room.Start(cfg, host.id)

	if _, err := reg.Join(cfg, "hunt2", late, "Carol", "green"); err != ErrGameStarted {
		t.Fatalf("join after start: got %v, want ErrGameStarted", err)
	}
	if len(drainMessages(late)) != 0 {
		t.Error("rejected joiner should receive nothing from the room")
	}
}

func TestJoinMissingKey(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry()

	c := newTestClient("conn-a")
	if _, err := reg.Join(cfg, "nope", c, "Alice", "red"); err != ErrRoomNotFound {
		t.Fatalf("join missing key: got %v, want ErrRoomNotFound", err)
	}
}

func TestNonHostStartIgnored(t *testing.T) {
	cfg, _, room, host, guest := setupLobby(t)

	room.Start(cfg, guest.id)

	if room.started {
		t.Error("non-host start must not change phase")
	}
	if len(drainMessages(host))+len(drainMessages(guest)) != 0 {
		t.Error("non-host start must not notify anyone")
	}
}

func TestStartBroadcastsOnce(t *testing.T) {
	cfg, _, room, host, guest := setupLobby(t)

	room.Start(cfg, host.id)
	room.Start(cfg, host.id) // repeat is a no-op

	if !room.started {
		t.Fatal("host start should move the room to started")
	}

	for _, c := range []*Client{host, guest} {
		msgs := drainMessages(c)
		if len(msgs) != 1 {
			t.Fatalf("expected exactly one message, got %d", len(msgs))
		}
		if _, ok := msgs[0].(RoomStartedMessage); !ok {
			t.Errorf("expected room_started, got %T", msgs[0])
		}
	}
}

func TestNonHostEndIgnored(t *testing.T) {
	cfg, reg, _, host, guest := setupLobby(t)

	if err := reg.End(cfg, "hunt2", guest.id); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, err := reg.Get("hunt2"); err != nil {
		t.Error("non-host end must not delete the room")
	}
	if len(drainMessages(host))+len(drainMessages(guest)) != 0 {
		t.Error("non-host end must not notify anyone")
	}
}

func TestHostEndNotifiesThenDeletes(t *testing.T) {
	cfg, reg, _, host, guest := setupLobby(t)

	if err := reg.End(cfg, "hunt2", host.id); err != nil {
		t.Fatalf("end: %v", err)
	}

	for _, c := range []*Client{host, guest} {
		if _, ok := recvMessage(t, c).(RoomEndedMessage); !ok {
			t.Error("all members should be told the room ended")
		}
	}

	if _, err := reg.Get("hunt2"); err != ErrRoomNotFound {
		t.Error("ended room should be gone from the registry")
	}
}

func TestLeaveNotifiesRemaining(t *testing.T) {
	cfg, reg, _, host, guest := setupLobby(t)

	reg.Leave(cfg, guest)

	list, ok := recvMessage(t, host).(MemberListMessage)
	if !ok {
		t.Fatal("remaining member should get a membership update")
	}
	if len(list.Members) != 1 || list.Members[0].Name != "Alice" {
		t.Errorf("unexpected member list after leave: %+v", list.Members)
	}
}

func TestHostLeaveKeepsRoom(t *testing.T) {
	cfg, reg, room, host, _ := setupLobby(t)

	room.Start(cfg, host.id)
	reg.Leave(cfg, host)

	// Host authority is not reassigned, but the room stays as long as
	// members remain.
	if _, err := reg.Get("hunt2"); err != nil {
		t.Error("room should survive the host disconnecting")
	}
}

func TestLeaveUnknownIDNoOp(t *testing.T) {
	cfg, reg, room, _, _ := setupLobby(t)

	reg.Leave(cfg, newTestClient("conn-stranger"))

	if len(room.players) != 2 {
		t.Error("leave by a never-joined connection must not touch membership")
	}
}

func TestSelectCellOverwriteAndClear(t *testing.T) {
	cfg, _, room, host, guest := setupLobby(t)

	room.Start(cfg, host.id)
	drainMessages(host)
	drainMessages(guest)

	room.SelectCell(host.id, "1-1")
	room.SelectCell(host.id, "2-2") // overwrite, no occupancy checks
	room.SelectCell(host.id, "")    // clear

	p := room.players[0]
	if p.selectedCell != "" {
		t.Errorf("selection should end up cleared, got %q", p.selectedCell)
	}

	msgs := drainMessages(guest)
	if len(msgs) != 3 {
		t.Fatalf("expected three selection notifications, got %d", len(msgs))
	}
	for i, want := range []bool{true, true, false} {
		sel, ok := msgs[i].(PlayerSelectedMessage)
		if !ok {
			t.Fatalf("expected player_has_selected, got %T", msgs[i])
		}
		if sel.PlayerID != host.id || sel.HasSelected != want {
			t.Errorf("notification %d: got %+v", i, sel)
		}
	}
}

func TestMemberListHidesSelection(t *testing.T) {
	cfg, reg, room, host, guest := setupLobby(t)

	room.SelectCell(host.id, "3-4")
	drainMessages(host)
	drainMessages(guest)

	late := newTestClient("conn-late")
	if _, err := reg.Join(cfg, "hunt2", late, "Carol", "green"); err != nil {
		t.Fatalf("join: %v", err)
	}

	recvMessage(t, late) // joined ack
	list, ok := recvMessage(t, late).(MemberListMessage)
	if !ok {
		t.Fatal("expected member list after joining")
	}

	if !list.Members[0].HasSelected {
		t.Error("member list should flag that the host has a selection")
	}
	if list.Members[2].HasSelected {
		t.Error("member list should not flag players without a selection")
	}
}

func TestSelectByNonMemberIgnored(t *testing.T) {
	_, _, room, host, guest := setupLobby(t)

	room.SelectCell("conn-stranger", "1-1")

	if len(drainMessages(host))+len(drainMessages(guest)) != 0 {
		t.Error("selection by a non-member must not notify anyone")
	}
}

// TestDroppedClientActionsStaySilent covers a connection whose outbound
// buffer saturates: the room drops it, closing its send channel while
// its read loop is still dispatching, and every later action from or to
// it must be absorbed without panicking.
func TestDroppedClientActionsStaySilent(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry()

	host := newTestClient("conn-host")
	if _, err := reg.Create(cfg, "tight", "Tight", host.id); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Join(cfg, "tight", host, "Alice", "red"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	drainMessages(host)

	// One slot: the joined ack fills it, so the member-list broadcast
	// overflows and the room drops the connection mid-join.
	cramped := &Client{
		id:   "conn-cramped",
		send: make(chan any, 1),
	}
	room, err := reg.Join(cfg, "tight", cramped, "Bob", "blue")
	if err != nil {
		t.Fatalf("cramped join: %v", err)
	}
	if _, ok := room.clients[cramped.id]; ok {
		t.Fatal("overflowed connection should have been dropped from the client set")
	}

	// Its read loop is still running and keeps dispatching.
	dispatch(cfg, reg, cramped, ClientMessage{Type: "select_cell", Key: "tight", CellID: "1-1"})
	dispatch(cfg, reg, cramped, ClientMessage{Type: "create_room", Name: "Again", Key: "tight"})

	// Broadcasts triggered by the dropped member still reach the rest.
	msgs := drainMessages(host)
	found := false
	for _, msg := range msgs {
		if sel, ok := msg.(PlayerSelectedMessage); ok && sel.PlayerID == cramped.id {
			found = true
		}
	}
	if !found {
		t.Error("remaining members should still hear the dropped member's selection")
	}
}

// TestEndedRoomRejectsLateJoin pins the admission check on a room
// pointer resolved before the host ended it.
func TestEndedRoomRejectsLateJoin(t *testing.T) {
	cfg, reg, room, host, _ := setupLobby(t)

	if err := reg.End(cfg, "hunt2", host.id); err != nil {
		t.Fatalf("end: %v", err)
	}

	late := newTestClient("conn-late")
	if err := room.Join(cfg, late, "Carol", "green"); err != ErrRoomNotFound {
		t.Fatalf("join into ended room: got %v, want ErrRoomNotFound", err)
	}
	if len(drainMessages(late)) != 0 {
		t.Error("rejected joiner should receive nothing from the ended room")
	}
}

// TestFailedJoinLeavesConnectionFree ensures a rejected join releases
// its membership slot, so the connection can still join elsewhere.
func TestFailedJoinLeavesConnectionFree(t *testing.T) {
	cfg, reg, room, host, _ := setupLobby(t)

	room.Start(cfg, host.id)

	late := newTestClient("conn-late")
	if _, err := reg.Join(cfg, "hunt2", late, "Carol", "green"); err != ErrGameStarted {
		t.Fatalf("join after start: got %v, want ErrGameStarted", err)
	}

	if _, err := reg.Create(cfg, "fresh", "Fresh", late.id); err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := reg.Join(cfg, "fresh", late, "Carol", "green")
	if err != nil {
		t.Fatalf("join after rejection: %v", err)
	}
	if fresh == nil {
		t.Fatal("rejected connection should be free to join another room")
	}
}
