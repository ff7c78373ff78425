package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/engine"
	"github.com/DoyleJ11/rpsls-backend/internal/history"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

// ErrClosed is returned when a message is sent to a room that has shut down.
var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

// Bind associates a connection with the room without seating it.
type Bind struct {
	ConnID string
	Outbox chan<- protocol.ServerMessage
	Ack    *protocol.ServerMessage // delivered once bound, before anything else from this room
	Reply  chan error
}

func (Bind) isRoomMsg() {}

type FromClient struct {
	ConnID string
	Cmd    engine.Command
}

func (FromClient) isRoomMsg() {}

type Chat struct {
	ConnID string
	Text   string
}

func (Chat) isRoomMsg() {}

// Leave unbinds a connection and vacates its seat if it had one.
type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Code    string
	Clients int
	State   engine.State
}

// MatchSink receives finished matches. It must not block.
type MatchSink interface {
	Enqueue(rec history.MatchRecord) bool
}

type Options struct {
	Logger *zap.Logger
	Sink   MatchSink
	// OnEmpty is called from the room goroutine right before it stops because nobody is left.
	OnEmpty func(code string, r *Room)
	// ClaimTimeout closes a room nobody ever bound to. Zero disables it.
	ClaimTimeout time.Duration
	Now          func() time.Time
}

type Room struct {
	code    string
	inbox   chan Msg
	state   engine.State
	clients map[string]chan<- protocol.ServerMessage
	ctx     context.Context
	cancel  context.CancelFunc

	log     *zap.Logger
	sink    MatchSink
	onEmpty func(code string, r *Room)
	now     func() time.Time
	claim   time.Duration
	claimed bool
}

func New(parent context.Context, code string, bestOf engine.BestOf, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(bestOf, opts.Now()),
		clients: make(map[string]chan<- protocol.ServerMessage),
		ctx:     ctx,
		cancel:  cancel,
		log:     opts.Logger.Named("room").With(zap.String("room", code)),
		sink:    opts.Sink,
		onEmpty: opts.OnEmpty,
		now:     opts.Now,
		claim:   opts.ClaimTimeout,
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Inbox is exposed for tests and callers that manage their own select.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Stop shuts the room down without waiting for queued messages.
func (r *Room) Stop() { r.cancel() }

// Send queues m unless the room or ctx is done first.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bind sends a Bind and waits for the verdict.
func (r *Room) Bind(ctx context.Context, connID string, outbox chan<- protocol.ServerMessage, ack *protocol.ServerMessage) error {
	reply := make(chan error, 1)
	if err := r.Send(ctx, Bind{ConnID: connID, Outbox: outbox, Ack: ack, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	var unclaimed <-chan time.Time
	if r.claim > 0 {
		t := time.NewTimer(r.claim)
		defer t.Stop()
		unclaimed = t.C
	}

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-unclaimed:
			unclaimed = nil
			if !r.claimed {
				r.log.Info("room never claimed, closing", zap.Duration("after", r.claim))
				r.teardown()
				return
			}

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Bind:
				msg.Reply <- r.bind(msg)

			case FromClient:
				r.apply(msg.ConnID, msg.Cmd)

			case Chat:
				r.chat(msg)

			case Leave:
				if r.leave(msg.ConnID) {
					r.log.Info("room closed, no players left")
					r.teardown()
					return
				}

			case GetState:
				msg.Reply <- View{Code: r.code, Clients: len(r.clients), State: r.state}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// teardown asks the owner to forget this room, then stops it.
func (r *Room) teardown() {
	if r.onEmpty != nil {
		r.onEmpty(r.code, r)
	}
	r.shutdown()
}

func (r *Room) shutdown() {
	clear(r.clients)
	r.cancel()
}

func (r *Room) bind(msg Bind) error {
	if _, ok := r.clients[msg.ConnID]; !ok {
		if r.state.Full() && r.state.SeatOf(msg.ConnID) < 0 {
			return engine.ErrRoomFull
		}
		r.clients[msg.ConnID] = msg.Outbox
		r.claimed = true
		r.log.Debug("connection bound", zap.String("conn", msg.ConnID), zap.Int("clients", len(r.clients)))
	}
	if msg.Ack != nil {
		r.sendTo(msg.ConnID, *msg.Ack)
	}
	return nil
}

func (r *Room) apply(connID string, cmd engine.Command) {
	if _, ok := r.clients[connID]; !ok {
		r.log.Debug("command from unbound connection ignored", zap.String("conn", connID), zap.String("cmd", string(cmd.Type)))
		return
	}
	if cmd.At.IsZero() {
		cmd.At = r.now()
	}
	cmd.ConnID = connID

	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.log.Debug("command rejected", zap.String("conn", connID), zap.String("cmd", string(cmd.Type)), zap.Error(err))
		r.reject(connID, err)
		return
	}
	r.state = next
	r.publish(events)
}

// leave reports whether the room should be torn down.
func (r *Room) leave(connID string) bool {
	_, bound := r.clients[connID]
	delete(r.clients, connID)

	hadSeat := r.state.SeatOf(connID) >= 0
	events, next, _ := engine.Apply(r.state, engine.Command{Type: engine.CmdLeave, ConnID: connID, At: r.now()})
	r.state = next
	r.publish(events)

	if bound || hadSeat {
		r.log.Info("connection left", zap.String("conn", connID), zap.Bool("seated", hadSeat), zap.Int("seats", r.state.Seated()))
	}

	if !bound && !hadSeat {
		return false
	}
	if r.state.Seated() > 0 {
		return false
	}
	// The last player walked out, or nobody ever sat down and the last connection is gone.
	return hadSeat || len(r.clients) == 0
}

func (r *Room) chat(msg Chat) {
	idx := r.state.SeatOf(msg.ConnID)
	if idx < 0 {
		r.reject(msg.ConnID, engine.ErrNotSeated)
		return
	}
	r.broadcast(protocol.New(protocol.EvtMessage, protocol.ChatMessage{
		From:   displayName(idx, r.state.Seats[idx].Name),
		Text:   msg.Text,
		SentAt: r.now().UnixMilli(),
	}))
}

func (r *Room) reject(connID string, err error) {
	switch {
	case errors.Is(err, engine.ErrRoomFull):
		r.sendTo(connID, protocol.New(protocol.EvtRoomFull, nil))
	case errors.Is(err, engine.ErrNotSeated):
		r.sendTo(connID, protocol.Error(protocol.CodeNotSeated, err.Error()))
	case errors.Is(err, engine.ErrGameNotReady):
		r.sendTo(connID, protocol.Error(protocol.CodeGameNotReady, err.Error()))
	case errors.Is(err, engine.ErrRoundNotStarted):
		r.sendTo(connID, protocol.Error(protocol.CodeRoundNotStarted, err.Error()))
	case errors.Is(err, engine.ErrMatchOver):
		r.sendTo(connID, protocol.Error(protocol.CodeMatchOver, err.Error()))
	case errors.Is(err, engine.ErrInvalidAction), errors.Is(err, engine.ErrUnsupportedCommand):
		r.sendTo(connID, protocol.Error(protocol.CodeInvalidInput, err.Error()))
	default:
		r.sendTo(connID, protocol.Error(protocol.CodeInternal, err.Error()))
	}
}

// sendTo never blocks the room: a client that cannot keep up misses the message.
func (r *Room) sendTo(connID string, msg protocol.ServerMessage) {
	ch, ok := r.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		r.log.Warn("outbox full, dropping message", zap.String("conn", connID), zap.String("event", msg.Event))
	}
}

// broadcast reaches every seated player.
func (r *Room) broadcast(msg protocol.ServerMessage) {
	for _, seat := range r.state.Seats {
		if !seat.Empty() {
			r.sendTo(seat.ConnID, msg)
		}
	}
}
