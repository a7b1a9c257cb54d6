package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/transport"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 100 * time.Millisecond

// Resolver maps a state name returned by next_state to a state.
type Resolver func(name string) state.GameState

// Options configures a LuaState.
type Options struct {
	// Name is the state name. Load defaults it to the file's base name.
	Name string

	// Publisher receives events from publish(). Nil makes publish a no-op
	// that returns false.
	Publisher *event.Publisher

	// Resolve turns next_state and push_state names into states.
	Resolve Resolver

	// States receives push_state and pop_state requests. Nil makes both
	// return false.
	States *state.Manager

	// Sink receives render() output.
	Sink transport.Sink

	// HookTimeout bounds each hook. Zero uses DefaultHookTimeout.
	HookTimeout time.Duration

	Logger *slog.Logger
}

// LuaState is a state.GameState backed by a Lua script.
// Like every state it must only be driven from the engine loop goroutine.
type LuaState struct {
	name   string
	L      *lua.LState
	opts   Options
	closed bool
	logger *slog.Logger
}

var _ state.GameState = (*LuaState)(nil)

// Program is a compiled script. Each NewState runs it in its own Lua state,
// so a state that has exited is never entered again.
type Program struct {
	proto *lua.FunctionProto
	opts  Options
}

// CompileFile reads and compiles the script at path. The name defaults to
// the file's base name without extension.
func CompileFile(path string, opts Options) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Compile(string(src), opts)
}

// Compile parses src once. Syntax errors are reported here; runtime errors
// in the chunk surface from NewState.
func Compile(src string, opts Options) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmptyScript
	}
	if opts.Name == "" {
		opts.Name = "Script"
	}
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = DefaultHookTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	chunk, err := parse.Parse(strings.NewReader(src), opts.Name)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", opts.Name, err)
	}
	proto, err := lua.Compile(chunk, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", opts.Name, err)
	}
	return &Program{proto: proto, opts: opts}, nil
}

// Name returns the name given to every state built from p.
func (p *Program) Name() string { return p.opts.Name }

// NewState runs the program in a fresh sandboxed Lua state.
func (p *Program) NewState() (*LuaState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	s := &LuaState{
		name:   p.opts.Name,
		L:      L,
		opts:   p.opts,
		logger: p.opts.Logger.With("component", "script", "state", p.opts.Name),
	}
	s.installAPI()

	err := s.run(func() error {
		L.Push(L.NewFunctionFromProto(p.proto))
		return L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("load script %s: %w", p.opts.Name, err)
	}
	return s, nil
}

// Load compiles and runs the script at path.
func Load(path string, opts Options) (*LuaState, error) {
	p, err := CompileFile(path, opts)
	if err != nil {
		return nil, err
	}
	return p.NewState()
}

// New compiles and runs src in a fresh sandboxed Lua state.
func New(src string, opts Options) (*LuaState, error) {
	p, err := Compile(src, opts)
	if err != nil {
		return nil, err
	}
	return p.NewState()
}

// openSafeLibraries opens only libraries without file or process access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (s *LuaState) installAPI() {
	s.L.SetGlobal("publish", s.L.NewFunction(s.luaPublish))
	s.L.SetGlobal("log", s.L.NewFunction(s.luaLog))
	s.L.SetGlobal("push_state", s.L.NewFunction(s.luaPushState))
	s.L.SetGlobal("pop_state", s.L.NewFunction(s.luaPopState))
}

// luaPublish implements publish(type, fields) -> ok, err.
func (s *LuaState) luaPublish(L *lua.LState) int {
	typ := L.CheckString(1)
	var raw []byte
	if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		fields := L.CheckTable(2)
		b, err := json.Marshal(toGo(fields))
		if err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		raw = b
	}

	if s.opts.Publisher == nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString("no publisher"))
		return 2
	}

	payload, err := event.DecodePayload(event.Type(typ), raw)
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if !s.opts.Publisher.Emit(payload) {
		L.Push(lua.LFalse)
		L.Push(lua.LString("event dropped"))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// luaPushState implements push_state(name) -> ok.
func (s *LuaState) luaPushState(L *lua.LState) int {
	name := L.CheckString(1)
	if s.opts.States == nil || s.opts.Resolve == nil {
		L.Push(lua.LFalse)
		return 1
	}
	next := s.opts.Resolve(name)
	L.Push(lua.LBool(next != nil && s.opts.States.PushState(next) == nil))
	return 1
}

// luaPopState implements pop_state() -> ok.
func (s *LuaState) luaPopState(L *lua.LState) int {
	if s.opts.States == nil {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(s.opts.States.PopState() == nil))
	return 1
}

func (s *LuaState) luaLog(L *lua.LState) int {
	s.logger.Info(L.CheckString(1))
	return 0
}

// Name returns the state name.
func (s *LuaState) Name() string { return s.name }

// Enter calls enter().
func (s *LuaState) Enter() { s.hook("enter") }

// Exit calls exit() and then releases the Lua state.
func (s *LuaState) Exit() {
	defer s.Close()
	s.hook("exit")
}

// Update calls update(dt) with dt in seconds.
func (s *LuaState) Update(dt time.Duration) {
	s.hook("update", lua.LNumber(dt.Seconds()))
}

// HandleInput calls handle_input(text).
func (s *LuaState) HandleInput(input string) {
	s.hook("handle_input", lua.LString(input))
}

// Render calls render() and sends a returned table to the sink.
func (s *LuaState) Render() {
	ret := s.hook("render")
	if s.opts.Sink == nil || ret == lua.LNil {
		return
	}

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return
	}
	view, err := json.Marshal(toGo(tbl))
	if err != nil {
		panic(&HookError{State: s.name, Hook: "render", Err: err})
	}
	s.opts.Sink.Send(transport.NewResponse(transport.KindSceneUpdate).
		Set("state", s.name).
		SetRaw("view", view).
		JSON())
}

// CanTransition calls can_transition(). Missing means true.
func (s *LuaState) CanTransition() bool {
	if !s.hasHook("can_transition") {
		return true
	}
	return lua.LVAsBool(s.hook("can_transition"))
}

// NextState calls next_state() and resolves the returned name.
func (s *LuaState) NextState() state.GameState {
	ret := s.hook("next_state")
	name, ok := ret.(lua.LString)
	if !ok || name == "" {
		return nil
	}
	if s.opts.Resolve == nil {
		s.logger.Warn("next_state ignored, no resolver", "next", string(name))
		return nil
	}
	next := s.opts.Resolve(string(name))
	if next == nil {
		s.logger.Warn("next_state names unknown state", "next", string(name))
	}
	return next
}

// Close releases the Lua state. Hooks become no-ops.
func (s *LuaState) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}

func (s *LuaState) hasHook(name string) bool {
	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// hook calls the global function name and returns its first result, or
// LNil if it is not defined. A Lua error panics with *HookError.
func (s *LuaState) hook(name string, args ...lua.LValue) lua.LValue {
	if !s.hasHook(name) {
		return lua.LNil
	}
	fn := s.L.GetGlobal(name)

	var ret lua.LValue = lua.LNil
	err := s.run(func() error {
		if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		ret = s.L.Get(-1)
		s.L.Pop(1)
		return nil
	})
	if err != nil {
		panic(&HookError{State: s.name, Hook: name, Err: err})
	}
	return ret
}

// run executes fn under the hook timeout.
func (s *LuaState) run(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HookTimeout)
	defer cancel()

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	return fn()
}
