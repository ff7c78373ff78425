package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/rpsls-backend/internal/session"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

const readLimit = 8 << 10

type Config struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
	// MessageRate caps inbound frames per second per connection. Zero means unlimited.
	MessageRate  float64
	MessageBurst int
}

func (c Config) withDefaults() Config {
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 1
	}
	return c
}

// Handler upgrades to a websocket and runs one session per connection.
// ?room=CODE joins that room right after the upgrade.
func Handler(reg session.Registry, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		sess := session.New(reg, cfg.OutboxSize, log)
		clog := log.With(zap.String("conn", sess.ID()))
		clog.Info("connected", zap.String("remote", r.RemoteAddr))

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error { return writeLoop(ctx, conn, sess.Outbox(), cfg) })
		g.Go(func() error {
			if code := r.URL.Query().Get("room"); code != "" {
				sess.JoinLink(ctx, code)
			}
			return readLoop(ctx, conn, sess, limiter(cfg))
		})

		err = g.Wait()
		code := sess.RoomCode()
		sess.Close()

		switch status := websocket.CloseStatus(err); {
		case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
			clog.Info("disconnected", zap.String("room", code))
		case errors.Is(err, context.Canceled):
			clog.Info("disconnected", zap.String("room", code), zap.String("reason", "server closing"))
		default:
			clog.Info("connection lost", zap.String("room", code), zap.Error(err))
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func limiter(cfg Config) *rate.Limiter {
	if cfg.MessageRate <= 0 {
		return rate.NewLimiter(rate.Inf, cfg.MessageBurst)
	}
	return rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst)
}

// readLoop stops reading while the limiter is empty, so a flooding client is slowed by TCP backpressure.
func readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, lim *rate.Limiter) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		sess.HandleRaw(ctx, data)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan protocol.ServerMessage, cfg Config) error {
	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		t := time.NewTicker(cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-out:
			wctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				return err
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
