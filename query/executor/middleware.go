package executor

import (
	"context"
	"time"

	"github.com/satishbabariya/seal-go/internal/debug"
)

// QueryEvent represents a statement execution event
type QueryEvent struct {
	DataSource string
	Op         string
	Query      string
	Args       []interface{}
	Duration   time.Duration
	Error      error
	Start      time.Time
	End        time.Time
}

// Middleware is a function that intercepts statements
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// Use adds a middleware to the chain
func (e *Executor) Use(middleware Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middlewares = append(e.middlewares, middleware)
}

// intercept runs exec through the middleware chain
func (e *Executor) intercept(ctx context.Context, op, query string, args []interface{}, exec func() error) error {
	e.mu.RLock()
	chain := e.middlewares
	e.mu.RUnlock()

	event := &QueryEvent{
		DataSource: e.Name(),
		Op:         op,
		Query:      query,
		Args:       args,
		Start:      time.Now(),
	}

	index := 0
	var next func() error
	next = func() error {
		if index >= len(chain) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}

		middleware := chain[index]
		index++
		return middleware(ctx, event, next)
	}

	return next()
}

// LoggingMiddleware logs every statement at debug level and failures at error level
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil {
			debug.Error("statement failed", "data_source", event.DataSource, "op", event.Op, "sql", event.Query, "error", err)
			return err
		}
		debug.Debug("statement", "data_source", event.DataSource, "op", event.Op, "sql", event.Query, "args", event.Args, "duration", event.Duration)
		return nil
	}
}

// TimingMiddleware creates a middleware that measures statement execution time
func TimingMiddleware(onTiming func(event *QueryEvent)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event)
		}
		return err
	}
}
