package emu

import "github.com/user-none/emtowns/emu/log"

// chipBus routes raw register writes to the unit that owns each address.
// Part 0 registers 0x00-0x0F belong to the SSG, 0x10-0x1D to the rhythm
// unit and everything from 0x20 up to the FM unit. Part 1 is FM only.
type chipBus struct {
	fm     *fmChip
	ssg    *ssgEngine
	rhythm *rhythmEngine
}

// isSSGRegister reports whether a write lands in the SSG's queue.
func isSSGRegister(part int, reg uint8) bool {
	return part == 0 && reg < 0x10
}

func (b *chipBus) writeRaw(part int, reg, val uint8) {
	if part == 0 {
		switch {
		case reg < 0x10:
			if err := b.ssg.write(reg, val); err != nil {
				log.ModSSG.WithField("reg", reg).Warnf("dropped write: %v", err)
			}
			return
		case reg < 0x20:
			b.rhythm.writeRegister(reg, val)
			return
		}
	}
	b.fm.writeRegister(part, reg, val)
}
