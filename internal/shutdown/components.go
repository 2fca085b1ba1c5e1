package shutdown

import "context"

// Shutdowner is anything with a context-aware shutdown, such as the HTTP
// server or the scan controller.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownerComponent adapts a Shutdowner.
type ShutdownerComponent struct {
	name string
	s    Shutdowner
}

// NewComponent creates a component that calls s.Shutdown.
func NewComponent(name string, s Shutdowner) *ShutdownerComponent {
	return &ShutdownerComponent{name: name, s: s}
}

// Name returns the component name.
func (c *ShutdownerComponent) Name() string {
	return c.name
}

// Shutdown calls the wrapped Shutdown.
func (c *ShutdownerComponent) Shutdown(ctx context.Context) error {
	return c.s.Shutdown(ctx)
}

// Stopper is a background loop with a blocking Stop, such as the device
// watcher.
type Stopper interface {
	Stop()
}

// StopperComponent wraps a Stopper for graceful shutdown.
type StopperComponent struct {
	name    string
	stopper Stopper
}

// NewStopperComponent creates a new stopper shutdown component.
func NewStopperComponent(name string, stopper Stopper) *StopperComponent {
	return &StopperComponent{name: name, stopper: stopper}
}

// Name returns the component name.
func (c *StopperComponent) Name() string {
	return c.name
}

// Shutdown stops the loop, giving up when ctx expires.
func (c *StopperComponent) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.stopper.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FuncComponent wraps a shutdown function as a component.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

// Name returns the component name.
func (c *FuncComponent) Name() string {
	return c.name
}

// Shutdown calls the wrapped function.
func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}
