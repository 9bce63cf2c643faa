package worker

import (
	"fmt"

	"github.com/cocaine-grape/worker/internal/logging"
)

// App maps event names to handler factories. Applications are registered
// with a worker under a name; the one matching the worker's startup app
// name serves all invocations.
type App struct {
	name     string
	handlers map[string]Factory
	fallback Factory
	log      *logging.Log
}

func NewApp() *App {
	return &App{handlers: make(map[string]Factory)}
}

// Name returns the application name; empty until the app is registered.
func (a *App) Name() string {
	return a.name
}

// Log returns the application's log ("app/<name>" source). Nil-safe to use
// before registration.
func (a *App) Log() *logging.Log {
	return a.log
}

// initialize is called at registration time: the app learns its name and
// gets its log bound to the worker's backend.
func (a *App) initialize(name string, backend logging.Logger) {
	a.name = name
	a.log = logging.NewLog(backend, "app/"+name)
}

// On binds factory to event. Registering the same event twice takes the
// later binding. App-bound factory kinds are bound here.
func (a *App) On(event string, factory Factory) {
	a.bind(factory)
	a.handlers[event] = factory
}

// OnFallback installs the catch-all factory used when no event matches.
func (a *App) OnFallback(factory Factory) {
	a.bind(factory)
	a.fallback = factory
}

type binder interface {
	bind(*App)
}

func (a *App) bind(factory Factory) {
	if b, ok := factory.(binder); ok {
		b.bind(a)
	}
}

// Invoke selects a factory for event (exact match over fallback),
// constructs a fresh handler, opens it against upstream, and returns it.
func (a *App) Invoke(event string, upstream Stream) (Handler, error) {
	factory, ok := a.handlers[event]
	if !ok {
		factory = a.fallback
	}
	if factory == nil {
		return nil, NewError("invoke", ErrCodeNoSuchEvent,
			fmt.Sprintf("no handler is bound for event %q", event))
	}
	handler, err := factory.MakeHandler()
	if err != nil {
		return nil, err
	}
	if err := handler.Invoke(event, upstream); err != nil {
		return nil, err
	}
	a.log.Debugf("invoking event %q", event)
	return handler, nil
}

// HandlerFactory builds class-style handlers: every invocation gets a
// fresh instance constructed against the owning application. The factory
// is unbound until registered via On/OnFallback; making a handler from an
// unbound factory fails.
type HandlerFactory struct {
	construct func(*App) Handler
	app       *App
}

func NewHandlerFactory(construct func(*App) Handler) *HandlerFactory {
	return &HandlerFactory{construct: construct}
}

func (f *HandlerFactory) bind(app *App) {
	f.app = app
}

func (f *HandlerFactory) MakeHandler() (Handler, error) {
	if f.app == nil {
		return nil, NewError("make_handler", ErrCodeBadFactory,
			"factory is not bound to an application")
	}
	return f.construct(f.app), nil
}

// FunctionFactory wraps a plain Function; it needs no application binding.
type FunctionFactory struct {
	fn Function
}

func NewFunctionFactory(fn Function) *FunctionFactory {
	return &FunctionFactory{fn: fn}
}

func (f *FunctionFactory) MakeHandler() (Handler, error) {
	return &functionHandler{fn: f.fn}, nil
}

// MethodFactory wraps a Method; like HandlerFactory it must be bound to an
// application before it can make handlers.
type MethodFactory struct {
	method Method
	app    *App
}

func NewMethodFactory(method Method) *MethodFactory {
	return &MethodFactory{method: method}
}

func (f *MethodFactory) bind(app *App) {
	f.app = app
}

func (f *MethodFactory) MakeHandler() (Handler, error) {
	if f.app == nil {
		return nil, NewError("make_handler", ErrCodeBadFactory,
			"factory is not bound to an application")
	}
	app := f.app
	method := f.method
	return &functionHandler{fn: func(event string, input [][]byte) ([]byte, error) {
		return method(app, event, input)
	}}, nil
}

var (
	_ Factory = (*HandlerFactory)(nil)
	_ Factory = (*FunctionFactory)(nil)
	_ Factory = (*MethodFactory)(nil)
)
