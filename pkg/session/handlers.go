package session

import (
	"encoding/json"

	"github.com/vango-dev/wsm/pkg/emitter"
)

// On subscribes fn to envelopes of eventType. Handlers run in registration
// order on the session's dispatch goroutine and survive reconnects.
func (s *Session) On(eventType string, fn func(data json.RawMessage)) emitter.HandlerID {
	s.mustBeConstructed()
	return s.router.On(eventType, fn)
}

// OnSignal subscribes fn to a payload-less event type. Declaring the type
// lets envelopes without a data field through validation.
func (s *Session) OnSignal(eventType string, fn func()) emitter.HandlerID {
	s.mustBeConstructed()
	s.signalMu.Lock()
	s.signals[eventType] = struct{}{}
	s.signalMu.Unlock()
	return s.router.On(eventType, func(json.RawMessage) { fn() })
}

// Once subscribes fn for the next envelope of eventType only.
func (s *Session) Once(eventType string, fn func(data json.RawMessage)) emitter.HandlerID {
	s.mustBeConstructed()
	return s.router.Once(eventType, fn)
}

// Off removes the given subscriptions for eventType, or all of them when no
// ids are given.
func (s *Session) Off(eventType string, ids ...emitter.HandlerID) {
	s.mustBeConstructed()
	s.router.Off(eventType, ids...)
}

// Handle subscribes a typed handler. The envelope data is decoded into T;
// envelopes that do not decode are logged and dropped. A payload-less
// envelope, accepted for types declared with OnSignal, delivers the zero T.
//
// Example:
//
//	type Greeting struct{ Text string `json:"text"` }
//	session.Handle(s, "greeting", func(g Greeting) {
//	    fmt.Println(g.Text)
//	})
func Handle[T any](s *Session, eventType string, fn func(T)) emitter.HandlerID {
	s.mustBeConstructed()
	return s.router.On(eventType, func(data json.RawMessage) {
		var v T
		if len(data) == 0 {
			fn(v)
			return
		}
		if err := json.Unmarshal(data, &v); err != nil {
			s.metrics.drop(dropDecode)
			s.logger.Warn("dropping event that does not decode",
				"type", eventType,
				"error", err)
			return
		}
		fn(v)
	})
}
