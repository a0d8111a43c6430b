package session

import (
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/transport"
)

// outbound is one application message, already encoded.
type outbound struct {
	op      protocol.Opcode
	payload []byte
}

// transfer is a chunked binary message being written.
type transfer struct {
	item   outbound
	chunks [][]byte
	next   int
}

// send transmits item if the session is open and nothing is ahead of it,
// otherwise queues it. Queued and live sends both end in transmit.
// Loop only.
func (s *Session) send(item outbound) {
	if s.state != StateOpen || s.inflight != nil || !s.queue.IsEmpty() {
		s.queue.Enqueue(item)
		s.syncQueueLen()
		return
	}
	s.transmit(item)
	s.notifyIdle()
}

// pump drains the queue in order while the session is open and no chunked
// transfer is in progress. Loop only.
func (s *Session) pump() {
	for s.state == StateOpen && s.inflight == nil {
		item, ok := s.queue.Dequeue()
		if !ok {
			break
		}
		s.syncQueueLen()
		s.transmit(item)
	}
	s.syncQueueLen()
	s.notifyIdle()
}

// transmit writes item, starting a chunked transfer for oversized binary
// payloads. A failed write re-queues the item and recycles the connection.
func (s *Session) transmit(item outbound) {
	if item.op == protocol.OpBinary && len(item.payload) > s.config.ChunkSize {
		t := &transfer{
			item:   item,
			chunks: protocol.Chunks(item.payload, s.config.ChunkSize),
		}
		s.inflight = t
		s.logger.Debug("chunked transfer started",
			"bytes", len(item.payload),
			"chunks", len(t.chunks))
		s.sendChunk(t)
		return
	}
	if err := s.write(protocol.NewFrame(item.op, item.payload)); err != nil {
		s.sendFailed(item, err)
	}
}

// sendChunk writes the next chunk of t and yields before the one after, so
// posted work (inbound frames, timers, API calls) runs between chunks.
func (s *Session) sendChunk(t *transfer) {
	if s.inflight != t || s.state != StateOpen {
		return
	}
	if err := s.write(protocol.NewFrame(protocol.OpBinary, t.chunks[t.next])); err != nil {
		s.inflight = nil
		s.sendFailed(t.item, err)
		return
	}
	t.next++
	if t.next < len(t.chunks) {
		s.yield(func() { s.sendChunk(t) })
		return
	}
	s.inflight = nil
	s.pump()
}

func (s *Session) sendFailed(item outbound, err error) {
	s.logger.Error("send failed, message re-queued",
		"error", err,
		"opcode", item.op.String(),
		"bytes", len(item.payload))
	s.requeueFront(item)
	if s.state == StateOpen {
		s.handleConnLoss(err)
	}
}

// requeueFront puts items back at the head of the queue, ahead of anything
// submitted after them.
func (s *Session) requeueFront(items ...outbound) {
	rest := s.queue.DequeueAll()
	for _, it := range items {
		s.queue.Enqueue(it)
	}
	for _, it := range rest {
		s.queue.Enqueue(it)
	}
	s.syncQueueLen()
}

// write sends one frame on the current connection.
func (s *Session) write(f protocol.Frame) error {
	if s.conn == nil {
		return transport.ErrConnClosed
	}
	if err := s.conn.WriteMessage(f); err != nil {
		s.metrics.writeError()
		return err
	}
	s.metrics.frameSent(f.Opcode(), len(f))
	return nil
}

func (s *Session) idle() bool {
	return s.state == StateOpen && s.inflight == nil && s.queue.IsEmpty()
}

func (s *Session) notifyIdle() {
	if !s.idle() || len(s.idleWaiters) == 0 {
		return
	}
	for _, w := range s.idleWaiters {
		w <- nil
	}
	s.idleWaiters = nil
}

func (s *Session) syncQueueLen() {
	n := int64(s.queue.Len())
	prev := s.queueLen.Swap(n)
	s.metrics.queueDelta(int(n - prev))
}
