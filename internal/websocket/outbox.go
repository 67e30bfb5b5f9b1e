package websocket

import (
	"errors"
	"sync"
)

// DefaultOutboxSize is used when a non-positive capacity is requested.
const DefaultOutboxSize = 256

var ErrOutboxClosed = errors.New("outbox closed")

// Outbox is the bounded outbound queue of one session. When full, Push
// discards the oldest queued frame instead of blocking the caller.
type Outbox struct {
	mu     sync.Mutex
	frames [][]byte
	cap    int
	closed bool

	ready chan struct{}
	done  chan struct{}

	onDrop func()
}

// NewOutbox creates an outbox holding at most capacity frames. onDrop, if
// set, is called once per discarded frame.
func NewOutbox(capacity int, onDrop func()) *Outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxSize
	}
	return &Outbox{
		frames: make([][]byte, 0, capacity),
		cap:    capacity,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
}

// Push enqueues a frame and reports whether an older frame was dropped to
// make room.
func (o *Outbox) Push(frame []byte) (bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, ErrOutboxClosed
	}
	dropped := false
	if len(o.frames) == o.cap {
		o.frames[0] = nil
		o.frames = o.frames[1:]
		dropped = true
	}
	o.frames = append(o.frames, frame)
	o.mu.Unlock()

	if dropped && o.onDrop != nil {
		o.onDrop()
	}

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return dropped, nil
}

// Drain removes and returns everything queued, oldest first.
func (o *Outbox) Drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.frames) == 0 {
		return nil
	}
	out := o.frames
	o.frames = make([][]byte, 0, o.cap)
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

// Ready is signalled after a Push. A single signal may cover many frames.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

// Done is closed by Close.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close is idempotent. Frames still queued remain available to Drain.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}

func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
