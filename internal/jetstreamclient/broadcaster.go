package jetstreamclient

import "sync"

// postSubscriberBufferSize bounds how many undelivered posts a single slow
// subscriber can accumulate before further events are dropped for it.
const postSubscriberBufferSize = 256

// postBroadcaster fans a single ingest-loop-published post stream out to many
// independent subscribers. A subscriber whose buffer is full never blocks the
// publisher: its event is dropped and counted instead (back-pressure policy,
// spec'd as the slow-consumer bound).
type postBroadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan *PostEvent
	dropped map[uint64]*uint64
}

func newPostBroadcaster() *postBroadcaster {
	return &postBroadcaster{
		subs:    make(map[uint64]chan *PostEvent),
		dropped: make(map[uint64]*uint64),
	}
}

// subscribe registers a new subscriber and returns its channel, its id (for
// unsubscribe), and a pointer to its live drop counter.
func (b *postBroadcaster) subscribe() (id uint64, ch <-chan *PostEvent, dropped *uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id = b.nextID
	c := make(chan *PostEvent, postSubscriberBufferSize)
	var d uint64
	b.subs[id] = c
	b.dropped[id] = &d
	return id, c, &d
}

func (b *postBroadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.subs[id]; ok {
		close(c)
		delete(b.subs, id)
		delete(b.dropped, id)
	}
}

// publish delivers ev to every current subscriber, never blocking on any one
// of them.
func (b *postBroadcaster) publish(ev *PostEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.subs {
		select {
		case c <- ev:
		default:
			*b.dropped[id]++
		}
	}
}

// statusBroadcaster fans out connection-status transitions the same way.
type statusBroadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan ConnectionStatus
}

func newStatusBroadcaster() *statusBroadcaster {
	return &statusBroadcaster{subs: make(map[uint64]chan ConnectionStatus)}
}

func (b *statusBroadcaster) subscribe() (id uint64, ch <-chan ConnectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id = b.nextID
	c := make(chan ConnectionStatus, 16)
	b.subs[id] = c
	return id, c
}

func (b *statusBroadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.subs[id]; ok {
		close(c)
		delete(b.subs, id)
	}
}

func (b *statusBroadcaster) publish(status ConnectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.subs {
		select {
		case c <- status:
		default:
		}
	}
}
