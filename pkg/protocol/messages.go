package protocol

import (
	"encoding/json"
	"strings"
)

// Client -> Server
//   create-room:     { bestOf: 3 | 5 }              (a bare number is accepted too)
//   join-room:       { roomId: string }             (a bare string is accepted too)
//   set-player-name: { playerName, roomId }
//   select-action:   { action, roomId }
//   new-round:       { roomId }                     (a bare string is accepted too)
//   send-message:    { text, roomId }
//
// Server -> Client
//   room-created, room-joined: { roomId }
//   room-not-found, room-full, waiting-for-player, waiting-for-opponent, player-disconnected: no data
//   player-joined:   { playerNumber, totalPlayers }
//   game-ready:      { players, player1Name, player2Name }
//   round-result:    see RoundResult
//   round-reset:     { player1Score, player2Score, roundNumber }
//   message:         { from, text, sentAt }
//   error:           { code, message }

const (
	EvtCreateRoom    = "create-room"
	EvtJoinRoom      = "join-room"
	EvtSetPlayerName = "set-player-name"
	EvtSelectAction  = "select-action"
	EvtNewRound      = "new-round"
	EvtSendMessage   = "send-message"

	EvtRoomCreated        = "room-created"
	EvtRoomJoined         = "room-joined"
	EvtRoomNotFound       = "room-not-found"
	EvtRoomFull           = "room-full"
	EvtPlayerJoined       = "player-joined"
	EvtWaitingForPlayer   = "waiting-for-player"
	EvtGameReady          = "game-ready"
	EvtWaitingForOpponent = "waiting-for-opponent"
	EvtRoundResult        = "round-result"
	EvtRoundReset         = "round-reset"
	EvtPlayerDisconnected = "player-disconnected"
	EvtMessage            = "message"
	EvtError              = "error"
)

// Error codes carried by EvtError.
const (
	CodeInvalidInput    = "invalid-input"
	CodeNotInRoom       = "not-in-room"
	CodeNotSeated       = "not-seated"
	CodeGameNotReady    = "game-not-ready"
	CodeRoundNotStarted = "round-not-started"
	CodeMatchOver       = "match-over"
	CodeInternal        = "internal"
)

// ClientMessage is the inbound envelope. Data is decoded per event.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func New(event string, data any) ServerMessage {
	return ServerMessage{Event: event, Data: data}
}

func Error(code, message string) ServerMessage {
	return ServerMessage{Event: EvtError, Data: ErrorData{Code: code, Message: message}}
}

type CreateRoom struct {
	BestOf int `json:"bestOf"`
}

func (c *CreateRoom) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		c.BestOf = n
		return nil
	}
	type plain CreateRoom
	return json.Unmarshal(b, (*plain)(c))
}

// RoomRef carries a room code for join-room and new-round.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

func (r *RoomRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.RoomID = s
		return nil
	}
	type plain RoomRef
	return json.Unmarshal(b, (*plain)(r))
}

type SetPlayerName struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
}

type SelectAction struct {
	Action string `json:"action"`
	RoomID string `json:"roomId"`
}

type SendMessage struct {
	Text   string `json:"text"`
	RoomID string `json:"roomId"`
}

type RoomInfo struct {
	RoomID string `json:"roomId"`
}

type PlayerJoined struct {
	PlayerNumber int `json:"playerNumber"`
	TotalPlayers int `json:"totalPlayers"`
}

type GameReady struct {
	Players     int    `json:"players"`
	Player1Name string `json:"player1Name"`
	Player2Name string `json:"player2Name"`
}

// RoundResult is sent to each seat; only IsPlayer1 and Outcome differ between the two copies.
type RoundResult struct {
	Player1Action string `json:"player1Action"`
	Player2Action string `json:"player2Action"`
	IsPlayer1     bool   `json:"isPlayer1"`
	Winner        string `json:"winner"` // "player1" | "player2" | "draw"
	Rule          string `json:"rule,omitempty"`
	Outcome       string `json:"outcome"` // "win" | "lose" | "draw"
	Player1Score  int    `json:"player1Score"`
	Player2Score  int    `json:"player2Score"`
	RoundNumber   int    `json:"roundNumber"`
	MatchOver     bool   `json:"matchOver"`
	MatchWinner   string `json:"matchWinner,omitempty"`
	MatchDuration *int   `json:"matchDuration,omitempty"`
	BestOf        int    `json:"bestOf"`
	Player1Name   string `json:"player1Name"`
	Player2Name   string `json:"player2Name"`
}

type RoundReset struct {
	Player1Score int `json:"player1Score"`
	Player2Score int `json:"player2Score"`
	RoundNumber  int `json:"roundNumber"`
}

type ChatMessage struct {
	From   string `json:"from"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt"` // unix millis
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NormalizeRoomID upper-cases and trims a user supplied room code.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
