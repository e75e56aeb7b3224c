package script

import (
	"github.com/user-none/emtowns/emu"
	"github.com/user-none/emtowns/emu/log"
)

// Player replays a script against a synth. It is also the synth's timer
// driver: attach it to have the timer handlers replayed on overflow.
type Player struct {
	sc    *Script
	steps []Step // sc.Steps with At scaled to the synth rate
	end   uint64

	next     int
	tick     uint64
	rejected int
}

// NewPlayer prepares sc for a synth running at rate ticks per second.
func NewPlayer(sc *Script, rate int) *Player {
	p := &Player{sc: sc, steps: make([]Step, len(sc.Steps))}
	copy(p.steps, sc.Steps)
	scale := func(t uint64) uint64 {
		if sc.Rate <= 0 || sc.Rate == rate {
			return t
		}
		return t * uint64(rate) / uint64(sc.Rate)
	}
	for i := range p.steps {
		p.steps[i].At = scale(p.steps[i].At)
	}
	p.end = scale(sc.Length())
	return p
}

// Tick returns the number of ticks rendered so far.
func (p *Player) Tick() uint64 { return p.tick }

// End returns the tick at which the script is finished.
func (p *Player) End() uint64 { return p.end }

// Done reports whether every step was issued and the tail rendered.
func (p *Player) Done() bool {
	return p.next >= len(p.steps) && p.tick >= p.end
}

// Rejected returns how many commands returned a result other than ok.
func (p *Player) Rejected() int { return p.rejected }

// Render produces count ticks into buf, issuing every step due before
// each tick. Produce is split at step boundaries.
func (p *Player) Render(s *emu.Synth, buf []int32, count int) {
	for done := 0; done < count; {
		for p.next < len(p.steps) && p.steps[p.next].At <= p.tick {
			p.issue(s, p.steps[p.next])
			p.next++
		}

		n := count - done
		if p.next < len(p.steps) {
			if until := p.steps[p.next].At - p.tick; until < uint64(n) {
				n = int(until)
			}
		}
		s.Produce(buf, done, n)
		done += n
		p.tick += uint64(n)
	}
}

func (p *Player) issue(c emu.Commander, st Step) {
	res := c.ProcessRaw(st.Op, st.Args...)
	if res != emu.ResultOK {
		p.rejected++
		log.ModScript.WithField("tick", p.tick).Debugf("%v: %v", st, res)
		return
	}
	for _, a := range st.Args {
		if a.Kind == emu.ArgOut {
			log.ModScript.WithField("tick", p.tick).Debugf("%v -> %d", st.Op, *a.Out)
		}
	}
}

// TimerA replays the timer A handler.
func (p *Player) TimerA(c emu.Commander) {
	for _, st := range p.sc.OnTimerA {
		p.issue(c, st)
	}
}

// TimerB replays the timer B handler.
func (p *Player) TimerB(c emu.Commander) {
	for _, st := range p.sc.OnTimerB {
		p.issue(c, st)
	}
}
