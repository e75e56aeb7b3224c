package emu

// timer is one of the two interval timers.
type timer struct {
	period  uint16 // Loaded period value
	counter uint16 // Current counter value
}

// writeTimerControl handles register 0x27.
// bit0/1 load A/B, bit2/3 flag enable A/B, bit4/5 flag reset A/B.
// A load bit going from 0 to 1 restarts that timer from a full period.
func (c *fmChip) writeTimerControl(val uint8) {
	loadA, loadB := val&0x01 != 0, val&0x02 != 0
	if loadA && !c.timerALoad {
		c.timerA.counter = 0
	}
	if loadB && !c.timerBLoad {
		c.timerB.counter = 0
	}
	c.timerALoad = loadA
	c.timerBLoad = loadB
	c.timerAEnable = val&0x04 != 0
	c.timerBEnable = val&0x08 != 0
	if val&0x10 != 0 {
		c.timerAOver = false
	}
	if val&0x20 != 0 {
		c.timerBOver = false
	}
}

// stepTimers advances Timer A and Timer B by one sample and reports which
// of them overflowed while loaded.
// Timer A: 10-bit, counts every sample, overflows at 1024-period.
// Timer B: 8-bit, counts every 16 samples, overflows at 256-period.
func (c *fmChip) stepTimers() (firedA, firedB bool) {
	if c.timerALoad {
		c.timerA.counter++
		if c.timerA.counter >= 1024-c.timerA.period {
			c.timerA.counter = 0
			if c.timerAEnable {
				c.timerAOver = true
			}
			firedA = true
		}
	}

	c.timerBSubCount++
	if c.timerBSubCount >= 16 {
		c.timerBSubCount = 0
		if c.timerBLoad {
			c.timerB.counter++
			if c.timerB.counter >= 256-c.timerB.period {
				c.timerB.counter = 0
				if c.timerBEnable {
					c.timerBOver = true
				}
				firedB = true
			}
		}
	}
	return firedA, firedB
}

// status returns the timer overflow flags in bits 0 and 1.
func (c *fmChip) status() uint8 {
	var s uint8
	if c.timerAOver {
		s |= 0x01
	}
	if c.timerBOver {
		s |= 0x02
	}
	return s
}
