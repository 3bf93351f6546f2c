// Package mock provides test doubles for the session package interfaces.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MrWong99/jargonaut/internal/session"
	"github.com/MrWong99/jargonaut/internal/translate"
)

// Conn is a mock implementation of session.Conn that keeps every written
// frame.
type Conn struct {
	mu sync.Mutex

	// WriteErr, if non-nil, is returned by every Write.
	WriteErr error

	// Frames holds the raw frames written so far.
	Frames [][]byte

	// CloseCalls counts Close invocations; CloseReason keeps the last reason.
	CloseCalls  int
	CloseReason string
}

// Write records data and returns WriteErr.
func (c *Conn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.Frames = append(c.Frames, buf)
	return nil
}

// Close records the call.
func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	c.CloseReason = reason
	return nil
}

// Messages decodes every frame written so far. Thread-safe.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.Frames))
	for _, f := range c.Frames {
		var m map[string]any
		if json.Unmarshal(f, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// OfType returns the decoded frames whose type is typ. Thread-safe.
func (c *Conn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.Messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// Closed reports whether Close has been called. Thread-safe.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCalls > 0
}

var _ session.Conn = (*Conn)(nil)

// Translator is a mock implementation of session.Translator.
type Translator struct {
	mu sync.Mutex

	// Response is returned when TranslateFunc is nil. When it is also nil a
	// response echoing the request text is returned.
	Response *translate.Response

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// TranslateFunc, if set, overrides Response and Err.
	TranslateFunc func(ctx context.Context, req translate.Request) (*translate.Response, error)

	// Requests records every call to Translate in order.
	Requests []translate.Request
}

// Translate records the request and returns the configured result.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (*translate.Response, error) {
	t.mu.Lock()
	t.Requests = append(t.Requests, req)
	fn, resp, err := t.TranslateFunc, t.Response, t.Err
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &translate.Response{SessionID: req.SessionID, Term: req.Text, Explanation: "explained"}
	}
	return resp, nil
}

// Calls returns a copy of the recorded requests. Thread-safe.
func (t *Translator) Calls() []translate.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]translate.Request, len(t.Requests))
	copy(out, t.Requests)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (t *Translator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Requests = nil
}

var _ session.Translator = (*Translator)(nil)
