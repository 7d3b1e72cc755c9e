package main

// ClientMessage is the single envelope for messages coming from clients.
type ClientMessage struct {
	Type           string `json:"type"`                     // "create_room", "join_room", "start_room", "end_room", "select_cell", "request_reveal", "respond_reveal"
	Name           string `json:"name,omitempty"`           // create_room: room display name
	Key            string `json:"key,omitempty"`            // room password
	PlayerName     string `json:"playerName,omitempty"`     // join_room
	PlayerColor    string `json:"playerColor,omitempty"`    // join_room
	CellID         string `json:"cellId,omitempty"`         // select_cell; empty clears the selection
	TargetPlayerID string `json:"targetPlayerId,omitempty"` // request_reveal
	RequesterID    string `json:"requesterId,omitempty"`    // respond_reveal
	Accepted       bool   `json:"accepted,omitempty"`       // respond_reveal
}

// Wire error codes.
const (
	codeKeyTaken     = "key_taken"
	codeRoomNotFound = "room_not_found"
	codeGameStarted  = "game_already_started"
)

// ErrorMessage reports a failed action back to the client that issued it.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomCreatedMessage acknowledges a successful create_room.
type RoomCreatedMessage struct {
	Type string `json:"type"` // "room_created"
	Name string `json:"name"`
	Key  string `json:"key"`
}

// JoinedMessage acknowledges a successful join_room to the joiner only.
type JoinedMessage struct {
	Type   string `json:"type"` // "joined"
	Name   string `json:"name"` // room display name
	IsHost bool   `json:"isHost"`
}

// Member is the public view of a player: no cell value, ever.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	HasSelected bool   `json:"hasSelected"`
}

// MemberListMessage broadcasts the room's membership in join order.
type MemberListMessage struct {
	Type    string   `json:"type"` // "member_list_update"
	Members []Member `json:"members"`
}

// RoomStartedMessage broadcasts the lobby-to-started transition.
type RoomStartedMessage struct {
	Type string `json:"type"` // "room_started"
}

// RoomEndedMessage broadcasts that the host ended the room, or that the
// room was reaped for idleness.
type RoomEndedMessage struct {
	Type string `json:"type"` // "room_ended"
}

// PlayerSelectedMessage broadcasts that a player picked (or cleared) a
// cell, without disclosing which cell.
type PlayerSelectedMessage struct {
	Type        string `json:"type"` // "player_has_selected"
	PlayerID    string `json:"playerId"`
	HasSelected bool   `json:"hasSelected"`
}

// RevealRequestedMessage is sent to the target of a reveal request only.
type RevealRequestedMessage struct {
	Type        string `json:"type"` // "reveal_requested"
	RequesterID string `json:"requesterId"`
}

// RevealGrantedMessage is sent to the requester only, carrying the
// target's cell as of the moment of acceptance.
type RevealGrantedMessage struct {
	Type     string `json:"type"` // "reveal_granted"
	TargetID string `json:"targetId"`
	CellID   string `json:"cellId"`
}
