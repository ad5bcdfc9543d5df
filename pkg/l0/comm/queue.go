package comm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Message is an outbound frame waiting in the Queue.
type Message struct {
	Code    byte
	Name    string
	Payload []byte
}

func (m Message) String() string {
	s := fmt.Sprintf("0x%02x[%d]", m.Code, len(m.Payload))
	if m.Name != "" {
		return m.Name + " " + s
	}
	return s
}

type queueItem struct {
	msg  Message
	next *queueItem
}

// Queue is an unbounded FIFO of outbound messages.
// Producers never block beyond the lock which is only held for
// linking/unlinking an item.
type Queue struct {
	head *queueItem
	tail *queueItem
	size int
	lock sync.Mutex

	notifyCh chan struct{}
}

// NewQueue creates a Queue.
func NewQueue() *Queue {
	return &Queue{notifyCh: make(chan struct{}, 1)}
}

// Enqueue appends a message.
func (q *Queue) Enqueue(msg Message) {
	item := &queueItem{msg: msg}
	q.lock.Lock()
	if q.head == nil {
		q.head = item
	} else {
		q.tail.next = item
	}
	q.tail = item
	q.size++
	q.lock.Unlock()

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// TryDequeue removes the first message if available.
func (q *Queue) TryDequeue() (msg Message, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	item := q.head
	if item == nil {
		return
	}
	if q.head = item.next; q.head == nil {
		q.tail = nil
	}
	q.size--
	return item.msg, true
}

// DequeueOrWait removes the first message, waiting at most timeout for
// one to arrive. It returns false on timeout or when ctx is done.
func (q *Queue) DequeueOrWait(ctx context.Context, timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if msg, ok := q.TryDequeue(); ok {
			return msg, true
		}
		remains := time.Until(deadline)
		if remains <= 0 {
			return Message{}, false
		}
		timer := time.NewTimer(remains)
		select {
		case <-q.notifyCh:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Message{}, false
		}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size
}
