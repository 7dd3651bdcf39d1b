package gateway

import (
	"context"
	"sync"
)

// sendQueue is the FIFO of serialized outbound frames. push signals notify; the
// write pump treats each signal as one writable notification and writes exactly one
// frame for it, re-signalling while frames remain.
//
// Every clear starts a new epoch. A pump only takes frames from the epoch it was
// started in, so a pump that outlives its connection never writes frames queued
// for the next one.
type sendQueue struct {
	mu     sync.Mutex
	frames [][]byte
	epoch  uint64
	notify chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{notify: make(chan struct{}, 1)}
}

func (q *sendQueue) push(frame []byte) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	q.signal()
}

func (q *sendQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest frame and reports whether more are waiting.
func (q *sendQueue) pop() (frame []byte, ok bool, more bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// popEpoch is pop for a pump started in epoch. stale is set once the queue has
// moved on; nothing is removed then.
func (q *sendQueue) popEpoch(epoch uint64) (frame []byte, ok, more, stale bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.epoch != epoch {
		return nil, false, len(q.frames) > 0, true
	}
	frame, ok, more = q.popLocked()
	return frame, ok, more, false
}

func (q *sendQueue) popLocked() (frame []byte, ok bool, more bool) {
	if len(q.frames) == 0 {
		return nil, false, false
	}
	frame = q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true, len(q.frames) > 0
}

// clear discards everything still queued and returns how many frames were dropped.
func (q *sendQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	q.frames = nil
	q.epoch++
	return n
}

func (q *sendQueue) currentEpoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// writePump drains q into conn until ctx is done, a write fails or q leaves epoch.
func writePump(ctx context.Context, conn Conn, q *sendQueue, epoch uint64, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
			frame, ok, more, stale := q.popEpoch(epoch)
			if stale {
				// Hand the notification on to the current pump.
				if more {
					q.signal()
				}
				return
			}
			if !ok {
				continue
			}
			if err := conn.WriteMessage(frame); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			if more {
				q.signal()
			}
		}
	}
}
