package amp

import (
	"context"
	"time"
)

// SessionStartEvent is the built-in event observed when a session is
// created. Its properties are the session's properties.
const SessionStartEvent = "AmpSession"

// EventFunc runs against every newly created session once it is enabled with
// WithBuiltinEvents. It is called synchronously from NewSession, so any
// request it issues takes the session's first indexes.
type EventFunc func(s *Session)

// builtinEvents are defined on every client; WithEvent may replace them.
var builtinEvents = map[string]EventFunc{
	SessionStartEvent: observeSessionStart,
}

func observeSessionStart(s *Session) {
	s.ObserveAsync(context.Background(), SessionStartEvent, s.Properties(), func(res *ObserveResult, err error) {
		if err != nil {
			s.client.logger.Warn("Session start event failed", "sessionId", s.ID(), "error", err)
		}
	})
}

// WithEvent defines a named session event. Defining a name does not enable
// it; list it in WithBuiltinEvents.
func WithEvent(name string, fn EventFunc) Option {
	return func(c *Client) {
		if c.events == nil {
			c.events = make(map[string]EventFunc)
		}
		c.events[name] = fn
	}
}

// WithBuiltinEvents enables named events, run in the given order whenever a
// session is created. Resumed sessions do not run them.
func WithBuiltinEvents(names ...string) Option {
	return func(c *Client) {
		c.enabledEvents = append(c.enabledEvents, names...)
	}
}

// WithSessionStartEvent enables the SessionStartEvent observe.
func WithSessionStartEvent() Option {
	return WithBuiltinEvents(SessionStartEvent)
}

func (c *Client) event(name string) EventFunc {
	if fn, ok := c.events[name]; ok {
		return fn
	}
	return builtinEvents[name]
}

func (c *Client) runEvents(s *Session) {
	for _, name := range c.enabledEvents {
		fn := c.event(name)
		if fn == nil {
			continue
		}
		start := time.Now()
		fn(s)
		c.logger.Debug("Session event ran", "event", name, "sessionId", s.ID(), "duration", time.Since(start))
	}
}

func (c *Client) validateEventConfig() []string {
	var errors []string

	for _, name := range c.enabledEvents {
		if c.event(name) == nil {
			errors = append(errors, "event "+name+" is not defined")
		}
	}

	return errors
}
