package history

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder moves records off the room goroutines: Enqueue never blocks, Run does the I/O.
type Recorder struct {
	store   Store
	queue   chan MatchRecord
	timeout time.Duration
	log     *zap.Logger
}

func NewRecorder(store Store, size int, log *zap.Logger) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{
		store:   store,
		queue:   make(chan MatchRecord, size),
		timeout: 5 * time.Second,
		log:     log.Named("history"),
	}
}

// Enqueue hands rec to the worker. It reports false when the queue is full and the record was dropped.
func (r *Recorder) Enqueue(rec MatchRecord) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		r.log.Warn("history queue full, dropping match", zap.String("match", rec.ID), zap.String("room", rec.RoomCode))
		return false
	}
}

// Run saves queued records until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case rec := <-r.queue:
			r.save(context.WithoutCancel(ctx), rec)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.save(context.Background(), rec)
		default:
			return
		}
	}
}

func (r *Recorder) save(parent context.Context, rec MatchRecord) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		r.log.Error("save match", zap.String("match", rec.ID), zap.Error(err))
		return
	}
	r.log.Debug("match archived",
		zap.String("match", rec.ID),
		zap.String("winner", rec.Winner),
		zap.String("score", rec.FinalScore()))
}
