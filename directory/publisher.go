package directory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 2 * time.Second

type update struct {
	entry  Entry
	remove bool
}

// Publisher serializes directory writes on a single goroutine so that
// callers holding room locks never wait on Redis. Updates for one room are
// applied in the order they were published.
type Publisher struct {
	store   Store
	logger  *zap.Logger
	updates chan update
	done    chan struct{}
}

func NewPublisher(store Store, logger *zap.Logger, buffer int) *Publisher {
	return &Publisher{
		store:   store,
		logger:  logger,
		updates: make(chan update, buffer),
		done:    make(chan struct{}),
	}
}

// Publish queues a snapshot. It never blocks; a full queue drops the update.
func (p *Publisher) Publish(e Entry) {
	p.enqueue(update{entry: e})
}

// Remove queues deletion of a room entry.
func (p *Publisher) Remove(roomID string) {
	p.enqueue(update{entry: Entry{ID: roomID}, remove: true})
}

func (p *Publisher) enqueue(u update) {
	select {
	case p.updates <- u:
	default:
		p.logger.Warn("directory queue full, dropping update",
			zap.String("room_id", u.entry.ID), zap.Bool("remove", u.remove))
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case u := <-p.updates:
			p.apply(u)
		}
	}
}

// Done is closed once Run has returned.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) flush() {
	for {
		select {
		case u := <-p.updates:
			p.apply(u)
		default:
			return
		}
	}
}

func (p *Publisher) apply(u update) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if u.remove {
		err = p.store.Delete(ctx, u.entry.ID)
	} else {
		err = p.store.Save(ctx, u.entry)
	}

	if err != nil {
		p.logger.Error("directory write failed",
			zap.String("room_id", u.entry.ID), zap.Bool("remove", u.remove), zap.Error(err))
	}
}
