package ui

import (
	"github.com/arl/blip"

	"github.com/user-none/emtowns/emu"
)

// Resampler converts the synth's interleaved int32 output at its native
// rate to interleaved int16 at the device rate. Input samples become
// band-limited steps in a pair of blip buffers, one per side, clocked at
// the native rate.
type Resampler struct {
	left, right *blip.Buffer
	prevL       int32
	prevR       int32
	chunk       int // input frames per blip frame
	out         []int16
	passthrough bool
}

// NewResampler returns a resampler from inRate to outRate frames per
// second. Equal rates only clamp.
func NewResampler(inRate, outRate int) *Resampler {
	r := &Resampler{passthrough: inRate == outRate}
	if r.passthrough {
		return r
	}

	// 20ms of input per blip frame; the buffers hold twice its output.
	r.chunk = max(inRate/50, 1)
	size := 2 * (r.chunk*outRate/inRate + 1)
	r.left = blip.NewBuffer(size)
	r.right = blip.NewBuffer(size)
	r.left.SetRates(float64(inRate), float64(outRate))
	r.right.SetRates(float64(inRate), float64(outRate))
	r.out = make([]int16, 2*size)
	return r
}

// Process converts in, interleaved left/right pairs, and appends the
// output frames available so far to dst[:0].
func (r *Resampler) Process(in []int32, dst []int16) []int16 {
	dst = dst[:0]
	if r.passthrough {
		for _, v := range in {
			dst = append(dst, emu.ClampSample(v))
		}
		return dst
	}

	frames := len(in) / 2
	for start := 0; start < frames; start += r.chunk {
		n := min(r.chunk, frames-start)
		for i := 0; i < n; i++ {
			l := int32(emu.ClampSample(in[2*(start+i)]))
			rt := int32(emu.ClampSample(in[2*(start+i)+1]))
			if l != r.prevL {
				r.left.AddDelta(uint64(i), l-r.prevL)
				r.prevL = l
			}
			if rt != r.prevR {
				r.right.AddDelta(uint64(i), rt-r.prevR)
				r.prevR = rt
			}
		}
		r.left.EndFrame(n)
		r.right.EndFrame(n)

		count := r.left.ReadSamples(r.out, r.left.SamplesAvailable(), blip.Stereo)
		r.right.ReadSamples(r.out[1:], count, blip.Stereo)
		dst = append(dst, r.out[:2*count]...)
	}
	return dst
}

// Reset discards buffered output and returns to silence.
func (r *Resampler) Reset() {
	if r.passthrough {
		return
	}
	r.left.Clear()
	r.right.Clear()
	r.prevL, r.prevR = 0, 0
}
