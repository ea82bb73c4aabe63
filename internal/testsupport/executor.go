package testsupport

import (
	"context"
	"sync"

	"juicenet/internal/services"
)

// ExecHandler scripts one stubbed process run.
type ExecHandler func(ctx context.Context, cmd services.Command, onLine func(services.Line)) (int, error)

// StubExecutor records commands and answers them with scripted handlers.
// Handlers are consumed in order; the last one repeats.
type StubExecutor struct {
	mu       sync.Mutex
	handlers []ExecHandler
	calls    []services.Command
}

// NewStubExecutor returns an executor that replays handlers in order.
func NewStubExecutor(handlers ...ExecHandler) *StubExecutor {
	return &StubExecutor{handlers: handlers}
}

// Run implements services.Executor.
func (s *StubExecutor) Run(ctx context.Context, cmd services.Command, onLine func(services.Line)) (int, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, cmd)
	var handler ExecHandler
	switch {
	case len(s.handlers) == 0:
	case idx < len(s.handlers):
		handler = s.handlers[idx]
	default:
		handler = s.handlers[len(s.handlers)-1]
	}
	s.mu.Unlock()

	if handler == nil {
		return 0, nil
	}
	if onLine == nil {
		onLine = func(services.Line) {}
	}
	return handler(ctx, cmd, onLine)
}

// Calls returns a copy of the recorded commands.
func (s *StubExecutor) Calls() []services.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.Command(nil), s.calls...)
}

// EmitLines returns a handler that prints lines on stdout and exits with code.
func EmitLines(code int, lines ...string) ExecHandler {
	return func(_ context.Context, _ services.Command, onLine func(services.Line)) (int, error) {
		for _, line := range lines {
			onLine(services.Line{Text: line})
		}
		return code, nil
	}
}
