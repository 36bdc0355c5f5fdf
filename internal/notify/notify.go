// Package notify is the user-visible notification surface: a bounded
// in-memory toast list the shell renders, behind a small Notifier
// interface so stores can report failures without knowing about it.
package notify

import (
	"sync"
	"time"
)

// Notifier receives transient user-visible messages.
type Notifier interface {
	Error(message string)
	Success(message string)
	Warn(message string)
}

// Discard drops every notification. Useful in tests.
type Discard struct{}

func (Discard) Error(string)   {}
func (Discard) Success(string) {}
func (Discard) Warn(string)    {}

type Level string

const (
	LevelError   Level = "error"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

// Toast is one transient notification.
type Toast struct {
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	defaultMaxToasts = 50
	defaultTTL       = 3 * time.Second
)

// Center keeps the active toast list. Expired entries are pruned on
// read; the list is bounded so a burst of failures cannot grow it
// without limit.
type Center struct {
	mu     sync.Mutex
	toasts []Toast
	max    int
	ttl    time.Duration
	now    func() time.Time

	metrics interface{ Notification(level string) }
}

type Option func(*Center)

func WithTTL(ttl time.Duration) Option {
	return func(c *Center) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMax(max int) Option {
	return func(c *Center) {
		if max > 0 {
			c.max = max
		}
	}
}

// WithMetrics counts notifications by level on the given recorder.
func WithMetrics(m interface{ Notification(level string) }) Option {
	return func(c *Center) {
		c.metrics = m
	}
}

func NewCenter(opts ...Option) *Center {
	c := &Center{
		max: defaultMaxToasts,
		ttl: defaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) Error(message string) {
	c.add(LevelError, "Error: "+message)
}

func (c *Center) Success(message string) {
	c.add(LevelSuccess, message)
}

func (c *Center) Warn(message string) {
	c.add(LevelWarning, "Warning: "+message)
}

// Active returns the unexpired toasts, oldest first.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

func (c *Center) add(level Level, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	c.toasts = append(c.toasts, Toast{
		Level:     level,
		Title:     title,
		CreatedAt: c.now(),
	})
	if len(c.toasts) > c.max {
		c.toasts = c.toasts[len(c.toasts)-c.max:]
	}
	if c.metrics != nil {
		c.metrics.Notification(string(level))
	}
}

func (c *Center) pruneLocked() {
	cutoff := c.now().Add(-c.ttl)
	kept := c.toasts[:0]
	for _, t := range c.toasts {
		if t.CreatedAt.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.toasts = kept
}
