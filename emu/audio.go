package emu

// Output groups. A channel's gain comes from the group its mask bit
// selects; lanes 8-15 form a master bank addressed with group|0x40.
const (
	GroupMusic = 0
	GroupSFX   = 1
	GroupCD    = 2
	GroupAux   = 3

	// MasterBank selects a group's master lanes.
	MasterBank = 0x40

	numGroups       = 4
	numLanes        = 16
	laneLevelMax    = 63
	laneGainUnity   = laneLevelMax * laneLevelMax
	defaultLaneByte = 0x7E
)

// Mixer channel bits used by the volume channel masks.
const (
	MixFM     = 0  // bits 0-5
	MixSSG    = 6  // bits 6-8
	MixRhythm = 9  // bit 9
	MixPCM    = 10 // bits 10-17

	numMixChannels = 18
	mixMaskAll     = 1<<numMixChannels - 1
)

// outputRouting holds the per-group output levels, lane mutes and the
// channel-to-group masks, and mixes channel outputs into one stereo pair.
type outputRouting struct {
	level [numLanes]int32 // 0-63
	mute  uint16
	maskA uint32
	maskB uint32

	gain  [numMixChannels][2]int32
	dirty bool
}

func newOutputRouting() *outputRouting {
	o := &outputRouting{}
	o.reset()
	o.maskA = mixMaskAll
	o.maskB = 0
	o.dirty = true
	return o
}

// reset restores every lane to its default level and clears the mutes.
func (o *outputRouting) reset() {
	for i := range o.level {
		o.level[i] = (defaultLaneByte & 0x7E) >> 1
	}
	o.mute = 0
	o.dirty = true
}

func laneBase(group int) (int, Result) {
	base := 0
	if group&MasterBank != 0 {
		base = 8
		group &^= MasterBank
	}
	if group < 0 || group >= numGroups {
		return 0, ResultInvalidParam
	}
	return base + group*2, ResultOK
}

func (o *outputRouting) setVolume(group, left, right int) Result {
	lane, res := laneBase(group)
	if res != ResultOK {
		return res
	}
	if left < 0 || left > 127 || right < 0 || right > 127 {
		return ResultInvalidParam
	}
	o.level[lane] = int32(left&0x7E) >> 1
	o.level[lane+1] = int32(right&0x7E) >> 1
	o.dirty = true
	return ResultOK
}

// volume reports a lane pair on the 0-127 scale it was set with.
func (o *outputRouting) volume(group int) (int, int, Result) {
	lane, res := laneBase(group)
	if res != ResultOK {
		return 0, 0, res
	}
	return int(o.level[lane]) << 1, int(o.level[lane+1]) << 1, ResultOK
}

func (o *outputRouting) setMute(flags int) {
	o.mute = uint16(flags)
	o.dirty = true
}

func (o *outputRouting) setMasks(a, b int) Result {
	if a&^mixMaskAll != 0 || b&^mixMaskAll != 0 {
		return ResultInvalidParam
	}
	o.maskA = uint32(a)
	o.maskB = uint32(b)
	o.dirty = true
	return ResultOK
}

func (o *outputRouting) laneGain(lane int) int32 {
	if o.mute&(1<<lane) != 0 || o.mute&(1<<(lane+8)) != 0 {
		return 0
	}
	return o.level[lane] * o.level[lane+8]
}

// refresh recomputes the per-channel gains. Channels in neither mask
// pass at unity.
func (o *outputRouting) refresh() {
	if !o.dirty {
		return
	}
	for i := range o.gain {
		bit := uint32(1) << i
		switch {
		case o.maskA&bit != 0:
			o.gain[i] = [2]int32{o.laneGain(GroupMusic * 2), o.laneGain(GroupMusic*2 + 1)}
		case o.maskB&bit != 0:
			o.gain[i] = [2]int32{o.laneGain(GroupSFX * 2), o.laneGain(GroupSFX*2 + 1)}
		default:
			o.gain[i] = [2]int32{laneGainUnity, laneGainUnity}
		}
	}
	o.dirty = false
}

// mix applies each channel's gain and sums the result.
func (o *outputRouting) mix(ch *[numMixChannels][2]int32) (int32, int32) {
	o.refresh()
	var l, r int64
	for i := range ch {
		l += int64(ch[i][0]) * int64(o.gain[i][0])
		r += int64(ch[i][1]) * int64(o.gain[i][1])
	}
	return int32(l / laneGainUnity), int32(r / laneGainUnity)
}

// clampInt32 clamps v to [min, max].
func clampInt32(v, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampSample narrows an accumulated output sample to 16 bits.
func ClampSample(v int32) int16 {
	return int16(clampInt32(v, -32768, 32767))
}
