package script

import (
	"encoding/hex"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/user-none/emtowns/emu"
	"github.com/user-none/emtowns/emu/log"
)

// ReadFileFunc resolves file names used by load() in Lua scripts.
type ReadFileFunc func(name string) ([]byte, error)

// luaBuilder accumulates the steps a Lua script issues.
type luaBuilder struct {
	sc       Script
	at       uint64
	target   *[]Step
	readFile ReadFileFunc
}

// ParseLua runs a Lua program that builds a script with these globals:
//
//	cmd(op, ...)     issue op (number or name) at the current tick;
//	                 numbers are int args, strings are buffers,
//	                 out() reserves an output slot
//	wait(ticks)      advance the current tick
//	hex(str)         decode a hex string into a buffer
//	load(name)       read a file into a buffer
//	rate(n)          set the tick rate
//	tail(ticks)      ticks to render after the last step
//	timer_a(fn)      record the commands fn issues as the timer A handler
//	timer_b(fn)      same for timer B
//
// readFile may be nil, in which case load() fails.
func ParseLua(src, name string, readFile ReadFileFunc) (*Script, error) {
	b := &luaBuilder{readFile: readFile}
	b.target = &b.sc.Steps

	L := lua.NewState()
	defer L.Close()

	for fname, fn := range map[string]lua.LGFunction{
		"cmd":     b.cmd,
		"wait":    b.wait,
		"hex":     luaHex,
		"load":    b.load,
		"out":     luaOut,
		"rate":    b.rate,
		"tail":    b.tail,
		"timer_a": b.timer(&b.sc.OnTimerA),
		"timer_b": b.timer(&b.sc.OnTimerB),
	} {
		L.SetGlobal(fname, L.NewFunction(fn))
	}

	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("script: lua: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, fmt.Errorf("script: lua: %w", err)
	}
	log.ModScript.Debugf("%s: %d steps", name, len(b.sc.Steps))

	sc := b.sc
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// outMarker is the userdata value returned by out().
type outMarker struct{}

func luaOut(L *lua.LState) int {
	ud := L.NewUserData()
	ud.Value = outMarker{}
	L.Push(ud)
	return 1
}

func luaHex(L *lua.LState) int {
	b, err := hex.DecodeString(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	L.Push(lua.LString(b))
	return 1
}

func (b *luaBuilder) cmd(L *lua.LState) int {
	var op emu.Opcode
	switch v := L.Get(1).(type) {
	case lua.LNumber:
		op = emu.Opcode(int(v))
	case lua.LString:
		var ok bool
		if op, ok = emu.OpcodeByName(string(v)); !ok {
			L.ArgError(1, fmt.Sprintf("unknown opcode %q", string(v)))
			return 0
		}
	default:
		L.ArgError(1, "opcode must be a number or a name")
		return 0
	}

	args := []emu.Arg{}
	for i := 2; i <= L.GetTop(); i++ {
		switch v := L.Get(i).(type) {
		case lua.LNumber:
			args = append(args, emu.Int(int(v)))
		case lua.LString:
			args = append(args, emu.Data([]byte(string(v))))
		case *lua.LUserData:
			if _, ok := v.Value.(outMarker); !ok {
				L.ArgError(i, "unsupported userdata")
				return 0
			}
			args = append(args, emu.Out(new(int)))
		default:
			L.ArgError(i, fmt.Sprintf("unsupported argument type %s", v.Type()))
			return 0
		}
	}

	*b.target = append(*b.target, Step{At: b.at, Op: op, Args: args})
	return 0
}

func (b *luaBuilder) wait(L *lua.LState) int {
	n := L.CheckInt(1)
	if n < 0 {
		L.ArgError(1, "negative wait")
		return 0
	}
	b.at += uint64(n)
	return 0
}

func (b *luaBuilder) load(L *lua.LState) int {
	name := L.CheckString(1)
	if b.readFile == nil {
		L.RaiseError("load(%q): file access disabled", name)
		return 0
	}
	buf, err := b.readFile(name)
	if err != nil {
		L.RaiseError("load(%q): %v", name, err)
		return 0
	}
	L.Push(lua.LString(buf))
	return 1
}

func (b *luaBuilder) rate(L *lua.LState) int {
	b.sc.Rate = L.CheckInt(1)
	return 0
}

func (b *luaBuilder) tail(L *lua.LState) int {
	n := L.CheckInt(1)
	if n < 0 {
		L.ArgError(1, "negative tail")
		return 0
	}
	b.sc.Tail = uint64(n)
	return 0
}

// timer returns a builtin that runs its function argument once with
// cmd() redirected to list.
func (b *luaBuilder) timer(list *[]Step) lua.LGFunction {
	return func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		prev, prevAt := b.target, b.at
		b.target, b.at = list, 0
		defer func() { b.target, b.at = prev, prevAt }()

		*list = (*list)[:0]
		L.Push(fn)
		L.Call(0, 0)
		return 0
	}
}
