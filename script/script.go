// Package script loads timed command lists for a Synth.
//
// A script is a sequence of steps, each an opcode with positional
// arguments issued at a tick. Scripts come from JSON documents or from
// Lua programs that build the same list.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user-none/emtowns/emu"
)

// ErrUnknownFormat is returned by Load for unrecognised file extensions.
var ErrUnknownFormat = errors.New("script: unknown file format")

// Step issues one command at tick At.
type Step struct {
	At   uint64
	Op   emu.Opcode
	Args []emu.Arg
}

func (st Step) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%d %v(", st.At, st.Op)
	for i, a := range st.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Script is a timed command list.
type Script struct {
	// Rate is the tick rate At values are expressed in. Zero means the
	// synth's native rate.
	Rate int

	// Tail is the number of ticks rendered after the last step.
	Tail uint64

	Steps []Step

	// OnTimerA and OnTimerB are replayed on every overflow of the timer.
	// Their At fields are ignored.
	OnTimerA []Step
	OnTimerB []Step
}

// Length returns the tick at which the script ends, in script ticks.
func (sc *Script) Length() uint64 {
	var last uint64
	if n := len(sc.Steps); n > 0 {
		last = sc.Steps[n-1].At
	}
	return last + sc.Tail
}

// validate orders the steps and checks that every one decodes.
func (sc *Script) validate() error {
	if sc.Rate < 0 {
		return fmt.Errorf("script: negative rate %d", sc.Rate)
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool {
		return sc.Steps[i].At < sc.Steps[j].At
	})
	check := func(list string, steps []Step) error {
		for i, st := range steps {
			if _, res := emu.Decode(st.Op, st.Args...); res != emu.ResultOK {
				return fmt.Errorf("script: %s[%d] %v: %w", list, i, st, res.Err())
			}
		}
		return nil
	}
	if err := check("steps", sc.Steps); err != nil {
		return err
	}
	if err := check("on_timer_a", sc.OnTimerA); err != nil {
		return err
	}
	return check("on_timer_b", sc.OnTimerB)
}

// Load reads a script file, choosing the parser by extension: .json
// or .lua. Lua scripts may read files relative to the script directory.
func Load(path string) (*Script, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(buf)
	case ".lua":
		dir := filepath.Dir(path)
		return ParseLua(string(buf), filepath.Base(path), func(name string) ([]byte, error) {
			if !filepath.IsAbs(name) {
				name = filepath.Join(dir, name)
			}
			return os.ReadFile(name)
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
