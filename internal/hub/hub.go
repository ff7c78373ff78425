package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/engine"
	"github.com/DoyleJ11/rpsls-backend/internal/room"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

// MaxCodeAttempts bounds how many fresh codes Create draws before giving up.
const MaxCodeAttempts = 32

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrCodeSpaceExhausted = errors.New("no free room code")
	ErrClosed             = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	BestOf engine.BestOf
	Reply  chan created
}

type created struct {
	room *room.Room
	err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code string
}

// removeIfSame is sent by a room that closed itself. A newer room under the same code is left alone.
type removeIfSame struct {
	Code string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()   {}
func (GetRoom) isHubMsg()      {}
func (RemoveRoom) isHubMsg()   {}
func (removeIfSame) isHubMsg() {}
func (CountRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg()  {}

type Options struct {
	Logger       *zap.Logger
	Sink         room.MatchSink
	ClaimTimeout time.Duration
	Now          func() time.Time
	// NewCode draws candidate codes. Defaults to GenerateCode.
	NewCode func() (string, error)
}

// Hub owns the code -> room map. Only the hub goroutine touches it.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	ctx    context.Context
	cancel context.CancelFunc

	log     *zap.Logger
	opts    Options
	newCode func() (string, error)
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		ctx:     ctx,
		cancel:  cancel,
		log:     opts.Logger.Named("hub"),
		opts:    opts,
		newCode: opts.NewCode,
	}
	if h.newCode == nil {
		h.newCode = GenerateCode
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Create registers a new room under a fresh code.
func (h *Hub) Create(ctx context.Context, bestOf engine.BestOf) (*room.Room, error) {
	reply := make(chan created, 1)
	if err := h.send(ctx, CreateRoom{BestOf: bestOf, Reply: reply}); err != nil {
		return nil, err
	}
	res, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	return res.room, res.err
}

// Find looks a room up by code, case-insensitively.
func (h *Hub) Find(ctx context.Context, code string) (*room.Room, error) {
	code = protocol.NormalizeRoomID(code)
	if code == "" {
		return nil, ErrRoomNotFound
	}
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	r, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete stops and forgets a room. Deleting an unknown code is not an error.
func (h *Hub) Delete(ctx context.Context, code string) error {
	return h.send(ctx, RemoveRoom{Code: protocol.NormalizeRoomID(code)})
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountRooms{Reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, h, reply)
}

// Shutdown stops every room and the hub itself.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.ctx.Done()
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				r, err := h.create(msg.BestOf)
				msg.Reply <- created{room: r, err: err}

			case GetRoom:
				r := h.rooms[msg.Code]
				if r != nil && closed(r) {
					delete(h.rooms, msg.Code)
					r = nil
				}
				msg.Reply <- r // May be nil

			case RemoveRoom:
				if r := h.rooms[msg.Code]; r != nil {
					delete(h.rooms, msg.Code)
					r.Stop()
					h.log.Info("room deleted", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
				}

			case removeIfSame:
				if h.rooms[msg.Code] == msg.Room {
					delete(h.rooms, msg.Code)
					h.log.Info("room released", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(bestOf engine.BestOf) (*room.Room, error) {
	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code, err := h.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if existing := h.rooms[code]; existing != nil && !closed(existing) {
			h.log.Debug("room code collision, regenerating", zap.String("room", code), zap.Int("attempt", attempt))
			continue
		}

		r := room.New(h.ctx, code, bestOf, room.Options{
			Logger:       h.opts.Logger,
			Sink:         h.opts.Sink,
			OnEmpty:      h.release,
			ClaimTimeout: h.opts.ClaimTimeout,
			Now:          h.opts.Now,
		})
		h.rooms[code] = r
		h.log.Info("room created", zap.String("room", code), zap.Int("best_of", int(bestOf)), zap.Int("rooms", len(h.rooms)))
		return r, nil
	}
	h.log.Error("room code space exhausted", zap.Int("attempts", MaxCodeAttempts), zap.Int("rooms", len(h.rooms)))
	return nil, ErrCodeSpaceExhausted
}

// release runs on the room goroutine.
func (h *Hub) release(code string, r *room.Room) {
	select {
	case h.inbox <- removeIfSame{Code: code, Room: r}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for code, r := range h.rooms {
		r.Stop()
		delete(h.rooms, code)
	}
	h.cancel()
}

func closed(r *room.Room) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}
