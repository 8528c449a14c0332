// Package notify carries user-facing toast notifications.
//
// The data service reports its outcomes ("Pen created successfully!", or the
// reason something failed) as toasts rather than errors. A Collector is
// attached to each request's context by Middleware; the Notifier appends to
// whichever Collector the context holds. API handlers return the collected
// toasts in the response envelope, and page handlers that redirect carry
// them across in a flash cookie.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level is the toast type.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Toast is one notification.
type Toast struct {
	Level   Level  `json:"type"`
	Message string `json:"message"`
}

// Notifier emits toasts.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
	Info(ctx context.Context, msg string)
}

// Collector accumulates toasts for one request. It is safe for concurrent
// use, since page handlers fan out service calls with errgroup.
type Collector struct {
	mu     sync.Mutex
	toasts []Toast
}

// Add appends a toast.
func (c *Collector) Add(t Toast) {
	c.mu.Lock()
	c.toasts = append(c.toasts, t)
	c.mu.Unlock()
}

// Drain returns the collected toasts and empties the collector.
func (c *Collector) Drain() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.toasts
	c.toasts = nil
	if out == nil {
		out = []Toast{}
	}
	return out
}

type collectorKey struct{}

// WithCollector returns a context carrying c.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the request's Collector, or nil outside a request.
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// ContextNotifier appends toasts to the context's Collector and logs each
// one. Toasts emitted without a Collector (background work) are only logged.
type ContextNotifier struct {
	logger *slog.Logger
}

// NewContextNotifier creates a ContextNotifier.
func NewContextNotifier(logger *slog.Logger) *ContextNotifier {
	return &ContextNotifier{logger: logger}
}

func (n *ContextNotifier) Success(ctx context.Context, msg string) {
	n.emit(ctx, LevelSuccess, msg)
}

func (n *ContextNotifier) Error(ctx context.Context, msg string) {
	n.emit(ctx, LevelError, msg)
}

func (n *ContextNotifier) Info(ctx context.Context, msg string) {
	n.emit(ctx, LevelInfo, msg)
}

func (n *ContextNotifier) emit(ctx context.Context, level Level, msg string) {
	n.logger.DebugContext(ctx, "toast", "level", level, "message", msg)
	if c := FromContext(ctx); c != nil {
		c.Add(Toast{Level: level, Message: msg})
	}
}
