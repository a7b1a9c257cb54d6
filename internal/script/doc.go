// Package script implements game states in Lua.
//
// A script defines any of these globals; missing ones behave like the
// no-op defaults of state.Base:
//
//	enter()            exit()
//	update(dt)         handle_input(text)
//	render()           -> table sent to the sink, or nil
//	can_transition()   -> boolean
//	next_state()       -> name resolved through Options.Resolve, or nil
//
// Scripts may call publish(type, fields) to queue an event on the bus,
// push_state(name) and pop_state() to request transitions, and
// log(message) to write to the process log. Only the base, table, string
// and math libraries are available.
//
// Compile or CompileFile parses a script once. Program.NewState runs it in
// a fresh Lua state, and Exit closes that state, so every activation starts
// from the script's top-level globals.
//
// A failing hook panics with a *HookError so that the state manager
// recovers it and reports a fault like any other state.
package script
