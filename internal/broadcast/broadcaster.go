// Package broadcast fans progress events out to per-job subscriber sets.
// Publishing is fire-and-forget: a missing, slow, or dead subscriber never
// blocks or fails the pipeline.
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

const (
	// DefaultSubscriberBuffer is the per-subscriber channel capacity.
	DefaultSubscriberBuffer = 64
	// DefaultHeartbeat is the keepalive interval for long-lived observers.
	DefaultHeartbeat = 30 * time.Second
)

// Subscription is one observer's receive side for a job's events. The channel
// is closed when the subscriber is dropped for falling behind or when it
// unsubscribes.
type Subscription struct {
	JobID string
	C     <-chan model.ProgressEvent

	ch     chan model.ProgressEvent
	closed bool // guarded by the broadcaster's mutex
}

// Broadcaster maintains per-job subscriber sets.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Broadcaster. A heartbeat event goes to every subscriber of
// every job at the given interval; pass 0 to disable the heartbeat loop.
func New(buffer int, heartbeat time.Duration) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	b := &Broadcaster{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		stop:   make(chan struct{}),
	}
	if heartbeat > 0 {
		b.wg.Add(1)
		go b.heartbeatLoop(heartbeat)
	}
	return b
}

// Subscribe registers a new observer for a job's events. Multiple independent
// subscribers per job are supported.
func (b *Broadcaster) Subscribe(jobID string) *Subscription {
	sub := &Subscription{JobID: jobID, ch: make(chan model.ProgressEvent, b.buffer)}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes an observer and closes its channel. Safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers an event to every subscriber of the job. It never blocks:
// a subscriber whose buffer is full is dropped and its channel closed.
func (b *Broadcaster) Publish(jobID string, event model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[jobID]
	if !ok {
		return
	}
	var dropped []*Subscription
	for sub := range set {
		select {
		case sub.ch <- event:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		zap.L().Warn("dropping slow subscriber",
			zap.String("job_id", jobID),
			zap.Int("buffer", b.buffer))
		b.removeLocked(sub)
	}
}

// SubscriberCount reports the current number of observers for a job.
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// Close stops the heartbeat loop and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for sub := range set {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
	}
	b.subs = make(map[string]map[*Subscription]struct{})
}

// removeLocked unregisters a subscription and prunes the job's set when it
// becomes empty. Caller holds b.mu.
func (b *Broadcaster) removeLocked(sub *Subscription) {
	set, ok := b.subs[sub.JobID]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.JobID)
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (b *Broadcaster) heartbeatLoop(interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			jobIDs := make([]string, 0, len(b.subs))
			for jobID := range b.subs {
				jobIDs = append(jobIDs, jobID)
			}
			b.mu.Unlock()

			ev := model.HeartbeatEvent()
			for _, jobID := range jobIDs {
				b.Publish(jobID, ev)
			}
		}
	}
}
