package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user-none/emtowns/emu"
)

func keyOnScript(at uint64) *Script {
	return &Script{
		Tail: 10,
		Steps: []Step{
			{At: at, Op: emu.OpKeyOn, Args: []emu.Arg{emu.Int(0), emu.Int(60), emu.Int(100)}},
		},
	}
}

func TestPlayerIssuesStepsOnTime(t *testing.T) {
	s := emu.New(emu.Options{})
	p := NewPlayer(keyOnScript(100), s.SampleRate())
	buf := make([]int32, 2*100)

	p.Render(s, buf, 100)
	assert.False(t, s.Snapshot().FM[0].Playing, "step issued early")
	assert.EqualValues(t, 100, p.Tick())
	assert.False(t, p.Done())

	p.Render(s, buf, 1)
	assert.True(t, s.Snapshot().FM[0].Playing, "step not issued at its tick")

	p.Render(s, buf, 9)
	assert.True(t, p.Done())
	assert.Zero(t, p.Rejected())
	assert.EqualValues(t, 110, s.Snapshot().Ticks)
}

func TestPlayerSplitsProduceAtSteps(t *testing.T) {
	// Rendering in one call must match rendering step by step.
	sc := &Script{Steps: []Step{
		{At: 3, Op: emu.OpKeyOn, Args: []emu.Arg{emu.Int(0), emu.Int(60), emu.Int(120)}},
		{At: 40, Op: emu.OpKeyOn, Args: []emu.Arg{emu.Int(1), emu.Int(67), emu.Int(120)}},
	}}

	whole := make([]int32, 2*64)
	s1 := emu.New(emu.Options{})
	NewPlayer(sc, s1.SampleRate()).Render(s1, whole, 64)

	pieces := make([]int32, 2*64)
	s2 := emu.New(emu.Options{})
	p := NewPlayer(sc, s2.SampleRate())
	for i := 0; i < 64; i++ {
		p.Render(s2, pieces[2*i:], 1)
	}
	assert.Equal(t, whole, pieces)
}

func TestPlayerScalesRate(t *testing.T) {
	sc := keyOnScript(50)
	sc.Rate = 1000
	p := NewPlayer(sc, 2000)
	assert.EqualValues(t, 120, p.End())
	assert.EqualValues(t, 50, sc.Steps[0].At, "script left untouched")

	s := emu.New(emu.Options{})
	p.Render(s, make([]int32, 2*100), 100)
	assert.False(t, s.Snapshot().FM[0].Playing)
	p.Render(s, make([]int32, 2), 1)
	assert.True(t, s.Snapshot().FM[0].Playing)
}

func TestPlayerCountsRejected(t *testing.T) {
	sc := keyOnScript(0)
	sc.Steps = append(sc.Steps, sc.Steps[0]) // second key-on finds the channel busy
	s := emu.New(emu.Options{})
	p := NewPlayer(sc, s.SampleRate())
	p.Render(s, make([]int32, 2), 1)
	assert.Equal(t, 1, p.Rejected())
}

func TestPlayerTimerHandlers(t *testing.T) {
	sc, err := ParseJSON([]byte(`{
	  "steps": [{"at": 0, "op": "set-timer-a", "args": [1, 1000]}],
	  "on_timer_a": [{"op": "key-on", "args": [1, 64, 100]}],
	  "on_timer_b": [{"op": "key-on", "args": [2, 64, 100]}]
	}`))
	require.NoError(t, err)

	s := emu.New(emu.Options{})
	p := NewPlayer(sc, s.SampleRate())
	require.NoError(t, s.Attach(p))
	p.Render(s, make([]int32, 2*64), 64)

	st := s.Snapshot()
	assert.True(t, st.FM[1].Playing, "timer A handler not replayed")
	assert.False(t, st.FM[2].Playing, "timer B never started")
	assert.Positive(t, p.Rejected(), "later overflows find channel 1 busy")
}
