// Package prepare runs an optional Lua hook over each inbound message
// before the resolver sees it. A deployment can rewrite the text, tag
// it, or short-circuit the turn entirely with a canned reply.
package prepare

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Result is the outcome of running the preparer over one message.
type Result struct {
	Text    string // transformed text (or reply when Resolve is false)
	Resolve bool   // if false, skip the resolver and return Text to the user
}

// Run executes the script at scriptPath, calling its global
// prepare(text, thread_id) function. The script returns either a
// string (rewritten text, turn continues) or a table with resolve
// (bool) and reply (string) to short-circuit the turn.
func Run(scriptPath, text, threadID string) (*Result, error) {
	lState := lua.NewState()
	defer lState.Close()

	lState.PreloadModule("os", osModuleLoader)

	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("script path: %w", err)
	}
	if err := lState.DoFile(absPath); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("prepare")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function prepare(text, thread_id)")
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("prepare must be a function, got %s", fn.Type().String())
	}

	lState.Push(fn)
	lState.Push(lua.LString(text))
	lState.Push(lua.LString(threadID))
	if err := lState.PCall(2, 1, nil); err != nil {
		return nil, fmt.Errorf("prepare(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	switch ret.Type() {
	case lua.LTString:
		return &Result{Text: ret.String(), Resolve: true}, nil
	case lua.LTTable:
		tbl := ret.(*lua.LTable)
		resolve := true
		var reply string
		tbl.ForEach(func(k, v lua.LValue) {
			if k.String() == "resolve" && v.Type() == lua.LTBool {
				resolve = v.(lua.LBool) == lua.LTrue
			}
			if k.String() == "reply" && v.Type() == lua.LTString {
				reply = v.String()
			}
		})
		return &Result{Text: reply, Resolve: resolve}, nil
	default:
		return nil, fmt.Errorf("prepare() must return string or table { resolve, reply }, got %s", ret.Type().String())
	}
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		key := ls.CheckString(1)
		ls.Push(lua.LString(os.Getenv(key)))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
