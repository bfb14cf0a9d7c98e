package jobs

import (
	"sync"

	"github.com/mantonx/vcompress/internal/database"
)

// subscriberBuffer is the per-subscriber event backlog. Progress events
// beyond it are dropped; terminal events always arrive.
const subscriberBuffer = 32

// Event is a job status or progress change.
type Event struct {
	JobID      string             `json:"job_id"`
	Status     database.JobStatus `json:"status"`
	Progress   float64            `json:"progress"`
	ResultPath string             `json:"result_path,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

func eventFor(job *database.Job) Event {
	return Event{
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultPath: job.ResultPath,
		Error:      job.Error,
	}
}

// broker fans job events out to subscribers.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[int]chan Event)}
}

func (b *broker) subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan Event)
	}
	b.subs[jobID][id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[jobID][id]; ok {
			delete(b.subs[jobID], id)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			close(c)
		}
	}
}

// publish delivers ev to the job's subscribers. A terminal event ends
// the job's streams.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Terminal() {
		b.endLocked(ev)
		return
	}
	for _, ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// end delivers ev as the last event of the job's streams and closes them,
// whatever ev's status.
func (b *broker) end(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endLocked(ev)
}

// endLocked evicts the oldest backlog entry if needed so ev always fits.
func (b *broker) endLocked(ev Event) {
	for _, ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
		close(ch)
	}
	delete(b.subs, ev.JobID)
}

// closedStream returns a finished stream holding only ev.
func closedStream(ev Event) <-chan Event {
	ch := make(chan Event, 1)
	ch <- ev
	close(ch)
	return ch
}
