package script

import (
	"encoding/hex"
	"fmt"

	"github.com/go-faster/jx"

	"github.com/user-none/emtowns/emu"
)

// ParseJSON decodes a JSON script:
//
//	{
//	  "rate": 55466,
//	  "tail": 11000,
//	  "steps": [
//	    {"at": 0, "op": "key-on", "args": [0, 60, 100]},
//	    {"at": 0, "op": 27, "args": [{"hex": "0a0b..."}]}
//	  ],
//	  "on_timer_a": [{"op": "key-off", "args": [0]}]
//	}
//
// Opcodes are numbers or names. Integer args are numbers, buffers are
// {"hex": ...} or {"b64": ...} objects and {"out": true} reserves an
// output slot.
func ParseJSON(data []byte) (*Script, error) {
	sc := &Script{}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rate":
			sc.Rate, err = d.Int()
		case "tail":
			sc.Tail, err = d.UInt64()
		case "steps":
			sc.Steps, err = decodeSteps(d)
		case "on_timer_a":
			sc.OnTimerA, err = decodeSteps(d)
		case "on_timer_b":
			sc.OnTimerB, err = decodeSteps(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("script: json: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func decodeSteps(d *jx.Decoder) ([]Step, error) {
	var steps []Step
	err := d.Arr(func(d *jx.Decoder) error {
		st, err := decodeStep(d)
		if err != nil {
			return fmt.Errorf("step %d: %w", len(steps), err)
		}
		steps = append(steps, st)
		return nil
	})
	return steps, err
}

func decodeStep(d *jx.Decoder) (Step, error) {
	var st Step
	hasOp := false
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "at":
			st.At, err = d.UInt64()
		case "op":
			st.Op, err = decodeOpcode(d)
			hasOp = true
		case "args":
			st.Args, err = decodeArgs(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err == nil && !hasOp {
		err = fmt.Errorf("missing op")
	}
	return st, err
}

func decodeOpcode(d *jx.Decoder) (emu.Opcode, error) {
	if d.Next() == jx.String {
		name, err := d.Str()
		if err != nil {
			return 0, err
		}
		op, ok := emu.OpcodeByName(name)
		if !ok {
			return 0, fmt.Errorf("unknown opcode %q", name)
		}
		return op, nil
	}
	n, err := d.Int()
	return emu.Opcode(n), err
}

func decodeArgs(d *jx.Decoder) ([]emu.Arg, error) {
	args := []emu.Arg{}
	err := d.Arr(func(d *jx.Decoder) error {
		switch d.Next() {
		case jx.Number:
			n, err := d.Int()
			if err != nil {
				return err
			}
			args = append(args, emu.Int(n))
			return nil
		case jx.Object:
			a, err := decodeObjectArg(d)
			if err != nil {
				return fmt.Errorf("arg %d: %w", len(args), err)
			}
			args = append(args, a)
			return nil
		}
		return fmt.Errorf("arg %d: unexpected %s", len(args), d.Next())
	})
	return args, err
}

func decodeObjectArg(d *jx.Decoder) (emu.Arg, error) {
	var (
		a   emu.Arg
		set bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if set {
			return fmt.Errorf("more than one value")
		}
		set = true
		switch key {
		case "hex":
			s, err := d.Str()
			if err != nil {
				return err
			}
			b, err := hex.DecodeString(s)
			if err != nil {
				return err
			}
			a = emu.Data(b)
		case "b64":
			b, err := d.Base64()
			if err != nil {
				return err
			}
			a = emu.Data(b)
		case "out":
			if err := d.Skip(); err != nil {
				return err
			}
			a = emu.Out(new(int))
		default:
			return fmt.Errorf("unknown arg kind %q", key)
		}
		return nil
	})
	if err == nil && !set {
		err = fmt.Errorf("empty arg object")
	}
	return a, err
}

// EncodeJSON writes sc in the form ParseJSON reads. Opcodes are written
// by name and buffers as base64.
func (sc *Script) EncodeJSON() []byte {
	var e jx.Encoder
	e.SetIdent(2)
	e.Obj(func(e *jx.Encoder) {
		if sc.Rate != 0 {
			e.Field("rate", func(e *jx.Encoder) { e.Int(sc.Rate) })
		}
		if sc.Tail != 0 {
			e.Field("tail", func(e *jx.Encoder) { e.UInt64(sc.Tail) })
		}
		e.Field("steps", func(e *jx.Encoder) { encodeSteps(e, sc.Steps, true) })
		if len(sc.OnTimerA) > 0 {
			e.Field("on_timer_a", func(e *jx.Encoder) { encodeSteps(e, sc.OnTimerA, false) })
		}
		if len(sc.OnTimerB) > 0 {
			e.Field("on_timer_b", func(e *jx.Encoder) { encodeSteps(e, sc.OnTimerB, false) })
		}
	})
	return e.Bytes()
}

func encodeSteps(e *jx.Encoder, steps []Step, timed bool) {
	e.Arr(func(e *jx.Encoder) {
		for _, st := range steps {
			e.Obj(func(e *jx.Encoder) {
				if timed {
					e.Field("at", func(e *jx.Encoder) { e.UInt64(st.At) })
				}
				e.Field("op", func(e *jx.Encoder) { e.Str(st.Op.String()) })
				e.Field("args", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, a := range st.Args {
							encodeArg(e, a)
						}
					})
				})
			})
		}
	})
}

func encodeArg(e *jx.Encoder, a emu.Arg) {
	switch a.Kind {
	case emu.ArgInt:
		e.Int(a.Int)
	case emu.ArgData:
		e.Obj(func(e *jx.Encoder) {
			e.Field("b64", func(e *jx.Encoder) { e.Base64(a.Data) })
		})
	case emu.ArgOut:
		e.Obj(func(e *jx.Encoder) {
			e.Field("out", func(e *jx.Encoder) { e.Bool(true) })
		})
	}
}
