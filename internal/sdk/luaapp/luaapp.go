// Package luaapp exposes an sdk.Client to Lua scripts as the global table app:
//
//	local id = app.on("saved", function(data, ev) print(ev.name) end)
//	app.once("ready", function() end)
//	app.off(id)
//	local ok, err = app.emit("saved", { doc = 1 })
//	app.send("mail", { subject = "hi" })
//	app.broadcast("theme changed")
//
// gopher-lua states are not goroutine-safe while bus handlers run on the
// emitter's goroutine, so deliveries are queued and run by Drain on the
// goroutine that owns the state.
package luaapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/sdk"
)

// GlobalName is the Lua global the module registers.
const GlobalName = "app"

// ErrNotRegistered is returned by Drain before Register.
var ErrNotRegistered = errors.New("lua app module not registered")

// Module binds one client to one Lua state.
type Module struct {
	client *sdk.Client
	ctx    context.Context
	logger zerolog.Logger

	L          *lua.LState
	handlerTbl *lua.LTable

	mu      sync.Mutex
	subs    map[string]luaSub
	nextID  uint64
	pending []delivery
}

type luaSub struct {
	sub  event.Subscription
	once bool
}

type delivery struct {
	localID string
	ev      event.Event
}

// Option configures a Module.
type Option func(*Module)

// WithContext sets the context used for emits made from Lua.
func WithContext(ctx context.Context) Option {
	return func(m *Module) {
		m.ctx = ctx
	}
}

// WithLogger sets the logger for handler failures.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Module) {
		m.logger = l
	}
}

// New creates a module for client.
func New(client *sdk.Client, opts ...Option) *Module {
	m := &Module{
		client: client,
		ctx:    context.Background(),
		logger: zerolog.Nop(),
		subs:   make(map[string]luaSub),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) handlerKey() string {
	return "_app_handlers_" + m.client.AppID()
}

// Register installs the app table into L.
func (m *Module) Register(L *lua.LState) error {
	m.L = L

	// Handlers live in a global table so the Lua GC keeps them.
	m.handlerTbl = L.NewTable()
	L.SetGlobal(m.handlerKey(), m.handlerTbl)

	mod := L.NewTable()
	L.SetField(mod, "id", lua.LString(m.client.AppID()))
	L.SetField(mod, "on", L.NewFunction(m.on))
	L.SetField(mod, "once", L.NewFunction(m.once))
	L.SetField(mod, "off", L.NewFunction(m.off))
	L.SetField(mod, "emit", L.NewFunction(m.emit))
	L.SetField(mod, "send", L.NewFunction(m.send))
	L.SetField(mod, "broadcast", L.NewFunction(m.broadcast))
	L.SetGlobal(GlobalName, mod)
	return nil
}

func (m *Module) generateID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("%s_%d", m.client.AppID(), m.nextID)
}

// enqueue returns a bus handler that queues the event for Drain.
func (m *Module) enqueue(localID string) event.HandlerFunc {
	return func(_ context.Context, ev event.Event) error {
		m.mu.Lock()
		m.pending = append(m.pending, delivery{localID: localID, ev: ev})
		m.mu.Unlock()
		return nil
	}
}

// app.on(name, fn) -> id
func (m *Module) on(L *lua.LState) int {
	return m.subscribe(L, false)
}

// app.once(name, fn) -> id
func (m *Module) once(L *lua.LState) int {
	return m.subscribe(L, true)
}

func (m *Module) subscribe(L *lua.LState, once bool) int {
	name := L.CheckString(1)
	handler := L.CheckFunction(2)
	if name == "" {
		L.ArgError(1, "event name cannot be empty")
		return 0
	}

	localID := m.generateID()
	var (
		sub event.Subscription
		err error
	)
	if once {
		sub, err = m.client.Once(name, m.enqueue(localID))
	} else {
		sub, err = m.client.On(name, m.enqueue(localID))
	}
	if err != nil {
		L.RaiseError("%s: %s", name, err.Error())
		return 0
	}

	m.handlerTbl.RawSetString(localID, handler)
	m.mu.Lock()
	m.subs[localID] = luaSub{sub: sub, once: once}
	m.mu.Unlock()

	L.Push(lua.LString(localID))
	return 1
}

// app.off(id) -> bool
func (m *Module) off(L *lua.LState) int {
	localID := L.CheckString(1)

	m.mu.Lock()
	ls, ok := m.subs[localID]
	delete(m.subs, localID)
	m.mu.Unlock()

	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	ls.sub.Unsubscribe()
	m.handlerTbl.RawSetString(localID, lua.LNil)
	L.Push(lua.LTrue)
	return 1
}

// pushResult pushes true, or nil and the error message.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// app.emit(name, data?) -> true | nil, err
func (m *Module) emit(L *lua.LState) int {
	name := L.CheckString(1)
	return pushResult(L, m.client.Emit(m.ctx, name, FromLua(L.Get(2))))
}

// app.send(target, data?) -> true | nil, err
func (m *Module) send(L *lua.LState) int {
	target := L.CheckString(1)
	return pushResult(L, m.client.SendMessage(m.ctx, target, FromLua(L.Get(2))))
}

// app.broadcast(data?) -> true | nil, err
func (m *Module) broadcast(L *lua.LState) int {
	return pushResult(L, m.client.Broadcast(m.ctx, FromLua(L.Get(1))))
}

// Pending returns the number of queued deliveries.
func (m *Module) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain runs every queued delivery on the calling goroutine, which must own
// the Lua state. Each handler receives the payload and an event table with
// name, source and id. Handler errors are logged and joined.
func (m *Module) Drain() (int, error) {
	if m.L == nil {
		return 0, ErrNotRegistered
	}

	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	var errs []error
	ran := 0
	for _, d := range batch {
		handler := m.L.GetField(m.handlerTbl, d.localID)
		if handler.Type() != lua.LTFunction {
			continue
		}

		m.mu.Lock()
		ls := m.subs[d.localID]
		if ls.once {
			delete(m.subs, d.localID)
		}
		m.mu.Unlock()
		if ls.once {
			m.handlerTbl.RawSetString(d.localID, lua.LNil)
		}

		meta := m.L.NewTable()
		meta.RawSetString("name", lua.LString(d.ev.Name))
		meta.RawSetString("source", lua.LString(d.ev.Source))
		meta.RawSetString("id", lua.LString(d.ev.ID))

		m.L.Push(handler)
		m.L.Push(ToLua(m.L, d.ev.Payload))
		m.L.Push(meta)
		ran++
		if err := m.L.PCall(2, 0, nil); err != nil {
			m.logger.Error().Err(err).
				Str("app", m.client.AppID()).
				Str("event", string(d.ev.Name)).
				Msg("lua handler failed")
			errs = append(errs, fmt.Errorf("%s: %w", d.ev.Name, err))
		}
	}
	return ran, errors.Join(errs...)
}

// Close unsubscribes every Lua handler and drops queued deliveries.
func (m *Module) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]luaSub)
	m.pending = nil
	m.mu.Unlock()

	for _, ls := range subs {
		ls.sub.Unsubscribe()
	}
	if m.L != nil {
		m.L.SetGlobal(m.handlerKey(), lua.LNil)
	}
	m.L = nil
	m.handlerTbl = nil
}
