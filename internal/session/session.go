package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/engine"
	"github.com/DoyleJ11/rpsls-backend/internal/hub"
	"github.com/DoyleJ11/rpsls-backend/internal/room"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

const (
	MaxNameLength    = 32
	MaxMessageLength = 500
)

// Registry is the part of the hub a session needs.
type Registry interface {
	Create(ctx context.Context, bestOf engine.BestOf) (*room.Room, error)
	Find(ctx context.Context, code string) (*room.Room, error)
}

type Status int

const (
	Unbound Status = iota
	BoundUnseated
	SeatedWaiting
	SeatedActive
)

func (s Status) String() string {
	switch s {
	case BoundUnseated:
		return "bound-unseated"
	case SeatedWaiting:
		return "seated-waiting"
	case SeatedActive:
		return "seated-active"
	default:
		return "unbound"
	}
}

// Session is one connection's view of the game. Handle and Close are called from a single goroutine.
type Session struct {
	id   string
	reg  Registry
	out  chan protocol.ServerMessage
	room *room.Room
	log  *zap.Logger
}

func New(reg Registry, outboxSize int, log *zap.Logger) *Session {
	if outboxSize <= 0 {
		outboxSize = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:  id,
		reg: reg,
		out: make(chan protocol.ServerMessage, outboxSize),
		log: log.Named("session").With(zap.String("conn", id)),
	}
}

func (s *Session) ID() string { return s.id }

// Outbox carries everything destined for this connection, from the session and from its room.
func (s *Session) Outbox() <-chan protocol.ServerMessage { return s.out }

// RoomCode is empty while unbound.
func (s *Session) RoomCode() string {
	if s.room == nil {
		return ""
	}
	return s.room.Code()
}

// HandleRaw decodes one inbound frame and dispatches it.
func (s *Session) HandleRaw(ctx context.Context, frame []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		s.fail(ctx, "", fmt.Errorf("%w: malformed message: %v", errInvalidInput, err))
		return
	}
	s.Handle(ctx, msg)
}

func (s *Session) Handle(ctx context.Context, msg protocol.ClientMessage) {
	var err error
	switch msg.Event {
	case protocol.EvtCreateRoom:
		err = s.createRoom(ctx, msg.Data)
	case protocol.EvtJoinRoom:
		err = s.joinRoom(ctx, msg.Data)
	case protocol.EvtSetPlayerName:
		err = s.setPlayerName(ctx, msg.Data)
	case protocol.EvtSelectAction:
		err = s.selectAction(ctx, msg.Data)
	case protocol.EvtNewRound:
		err = s.newRound(ctx, msg.Data)
	case protocol.EvtSendMessage:
		err = s.sendMessage(ctx, msg.Data)
	default:
		err = fmt.Errorf("%w: unknown event %q", errInvalidInput, msg.Event)
	}
	if err != nil {
		s.fail(ctx, msg.Event, err)
	}
}

var (
	errInvalidInput = errors.New("invalid input")
	errNotInRoom    = errors.New("not in this room")
)

func (s *Session) fail(ctx context.Context, event string, err error) {
	switch {
	case errors.Is(err, hub.ErrRoomNotFound), errors.Is(err, room.ErrClosed):
		s.reply(ctx, protocol.New(protocol.EvtRoomNotFound, nil))
	case errors.Is(err, engine.ErrRoomFull):
		s.reply(ctx, protocol.New(protocol.EvtRoomFull, nil))
	case errors.Is(err, errInvalidInput), errors.Is(err, engine.ErrInvalidAction), errors.Is(err, engine.ErrInvalidBestOf):
		s.reply(ctx, protocol.Error(protocol.CodeInvalidInput, err.Error()))
	case errors.Is(err, errNotInRoom):
		s.reply(ctx, protocol.Error(protocol.CodeNotInRoom, err.Error()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, hub.ErrClosed):
		s.log.Debug("request abandoned", zap.String("event", event), zap.Error(err))
	default:
		s.log.Error("request failed", zap.String("event", event), zap.Error(err))
		s.reply(ctx, protocol.Error(protocol.CodeInternal, "internal error"))
	}
}

// reply blocks until the writer takes msg or ctx ends.
func (s *Session) reply(ctx context.Context, msg protocol.ServerMessage) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	return nil
}

func (s *Session) createRoom(ctx context.Context, data json.RawMessage) error {
	var req protocol.CreateRoom
	if err := decode(data, &req); err != nil {
		return err
	}
	bestOf, err := engine.ParseBestOf(req.BestOf)
	if err != nil {
		return err
	}

	r, err := s.reg.Create(ctx, bestOf)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	ack := protocol.New(protocol.EvtRoomCreated, protocol.RoomInfo{RoomID: r.Code()})
	return s.bind(ctx, r, ack)
}

func (s *Session) joinRoom(ctx context.Context, data json.RawMessage) error {
	var req protocol.RoomRef
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.Join(ctx, req.RoomID)
}

// Join binds the session to an existing room, as join-room does.
func (s *Session) Join(ctx context.Context, code string) error {
	code = protocol.NormalizeRoomID(code)
	if code == "" {
		return fmt.Errorf("%w: roomId is required", errInvalidInput)
	}
	r, err := s.reg.Find(ctx, code)
	if err != nil {
		return err
	}
	ack := protocol.New(protocol.EvtRoomJoined, protocol.RoomInfo{RoomID: r.Code()})
	return s.bind(ctx, r, ack)
}

// JoinLink joins the room named in a share link and reports failures on the outbox.
func (s *Session) JoinLink(ctx context.Context, code string) {
	if err := s.Join(ctx, code); err != nil {
		s.fail(ctx, protocol.EvtJoinRoom, err)
	}
}

// bind moves the session to r. The previous room is only left once r has accepted the connection.
func (s *Session) bind(ctx context.Context, r *room.Room, ack protocol.ServerMessage) error {
	if err := r.Bind(ctx, s.id, s.out, &ack); err != nil {
		return err
	}
	if s.room != nil && s.room != r {
		s.leave(ctx)
	}
	s.room = r
	s.log.Debug("bound", zap.String("room", r.Code()))
	return nil
}

// ensureRoom resolves the roomId a client sent against the bound room.
// set-player-name may move the session; other events must match.
func (s *Session) ensureRoom(ctx context.Context, roomID string, rebind bool) error {
	roomID = protocol.NormalizeRoomID(roomID)
	switch {
	case s.room == nil && roomID == "":
		return fmt.Errorf("%w: join a room first", errNotInRoom)
	case roomID == "" || (s.room != nil && roomID == s.room.Code()):
		return nil
	case rebind:
		return s.Join(ctx, roomID)
	default:
		return fmt.Errorf("%w: bound to a different room", errNotInRoom)
	}
}

func (s *Session) setPlayerName(ctx context.Context, data json.RawMessage) error {
	var req protocol.SetPlayerName
	if err := decode(data, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.PlayerName)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: playerName longer than %d characters", errInvalidInput, MaxNameLength)
	}
	if err := s.ensureRoom(ctx, req.RoomID, true); err != nil {
		return err
	}
	return s.toRoom(ctx, engine.Command{Type: engine.CmdSeat, Name: name})
}

func (s *Session) selectAction(ctx context.Context, data json.RawMessage) error {
	var req protocol.SelectAction
	if err := decode(data, &req); err != nil {
		return err
	}
	action, err := engine.ParseAction(req.Action)
	if err != nil {
		return err
	}
	if err := s.ensureRoom(ctx, req.RoomID, false); err != nil {
		return err
	}
	return s.toRoom(ctx, engine.Command{Type: engine.CmdSelectAction, Action: action})
}

func (s *Session) newRound(ctx context.Context, data json.RawMessage) error {
	var req protocol.RoomRef
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := s.ensureRoom(ctx, req.RoomID, false); err != nil {
		return err
	}
	return s.toRoom(ctx, engine.Command{Type: engine.CmdNewRound})
}

func (s *Session) sendMessage(ctx context.Context, data json.RawMessage) error {
	var req protocol.SendMessage
	if err := decode(data, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fmt.Errorf("%w: text is required", errInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return fmt.Errorf("%w: text longer than %d characters", errInvalidInput, MaxMessageLength)
	}
	if err := s.ensureRoom(ctx, req.RoomID, false); err != nil {
		return err
	}
	return s.deliver(ctx, room.Chat{ConnID: s.id, Text: text})
}

func (s *Session) toRoom(ctx context.Context, cmd engine.Command) error {
	return s.deliver(ctx, room.FromClient{ConnID: s.id, Cmd: cmd})
}

func (s *Session) deliver(ctx context.Context, m room.Msg) error {
	err := s.room.Send(ctx, m)
	if errors.Is(err, room.ErrClosed) {
		s.room = nil
	}
	return err
}

// Status asks the bound room where this connection stands.
func (s *Session) Status(ctx context.Context) (Status, error) {
	if s.room == nil {
		return Unbound, nil
	}
	v, err := s.room.View(ctx)
	if errors.Is(err, room.ErrClosed) {
		s.room = nil
		return Unbound, nil
	}
	if err != nil {
		return Unbound, err
	}
	switch {
	case v.State.SeatOf(s.id) < 0:
		return BoundUnseated, nil
	case v.State.Full():
		return SeatedActive, nil
	default:
		return SeatedWaiting, nil
	}
}

func (s *Session) leave(ctx context.Context) {
	if s.room == nil {
		return
	}
	if err := s.room.Send(ctx, room.Leave{ConnID: s.id}); err != nil && !errors.Is(err, room.ErrClosed) {
		s.log.Debug("leave not delivered", zap.String("room", s.room.Code()), zap.Error(err))
	}
	s.room = nil
}

// Close releases the bound room. The connection's own context is usually gone by now.
func (s *Session) Close() {
	s.leave(context.Background())
}
