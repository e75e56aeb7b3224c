package emu

import (
	"bytes"
	"encoding/binary"
)

const (
	waveArenaSize   = 65536
	waveBudget      = 65504
	maxWaveTables   = 128
	waveHeaderSize  = 32
	effectBufferLen = 8192
)

// WaveHeader is the 32-byte little-endian header that precedes every wave
// table's sample data.
type WaveHeader struct {
	Name       string
	ID         int32
	Size       int32
	LoopStart  uint32
	LoopLen    uint32
	Rate       uint16
	RateOffset uint16
	BaseNote   uint16
}

// ParseWaveHeader decodes a header from the first 32 bytes of b.
func ParseWaveHeader(b []byte) (WaveHeader, Result) {
	if len(b) < waveHeaderSize {
		return WaveHeader{}, ResultNoData
	}
	le := binary.LittleEndian
	h := WaveHeader{
		Name:       string(bytes.TrimRight(b[0:8], "\x00")),
		ID:         int32(le.Uint32(b[8:])),
		Size:       int32(le.Uint32(b[12:])),
		LoopStart:  le.Uint32(b[16:]),
		LoopLen:    le.Uint32(b[20:]),
		Rate:       le.Uint16(b[24:]),
		RateOffset: le.Uint16(b[26:]),
		// stored widened, only the low half is meaningful
		BaseNote: le.Uint16(b[28:]),
	}
	return h, ResultOK
}

// AppendBinary encodes h in the 32-byte wire layout.
func (h WaveHeader) AppendBinary(b []byte) []byte {
	var name [8]byte
	copy(name[:], h.Name)
	b = append(b, name[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.ID))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Size))
	b = binary.LittleEndian.AppendUint32(b, h.LoopStart)
	b = binary.LittleEndian.AppendUint32(b, h.LoopLen)
	b = binary.LittleEndian.AppendUint16(b, h.Rate)
	b = binary.LittleEndian.AppendUint16(b, h.RateOffset)
	b = binary.LittleEndian.AppendUint32(b, uint32(h.BaseNote))
	return b
}

// checkLoop reports whether the loop region fits inside the sample data.
func (h WaveHeader) checkLoop() bool {
	end := uint64(h.LoopStart) + uint64(h.LoopLen)
	return end <= uint64(h.Size)
}

// WaveTable is a loaded wave table: its header plus the location of its
// samples inside the store's arena.
type WaveTable struct {
	WaveHeader
	offset int
}

// WaveTableStore owns the 64 KB sample arena and the wave tables loaded
// into it. Tables are packed from the start of the arena in load order.
type WaveTableStore struct {
	arena  [waveArenaSize]byte
	tables []WaveTable
	total  int
}

func NewWaveTableStore() *WaveTableStore {
	return &WaveTableStore{tables: make([]WaveTable, 0, maxWaveTables)}
}

// Total returns the number of arena bytes used by loaded tables.
func (s *WaveTableStore) Total() int { return s.total }

// Len returns the number of loaded tables.
func (s *WaveTableStore) Len() int { return len(s.tables) }

// Tables returns a copy of the loaded table headers.
func (s *WaveTableStore) Tables() []WaveHeader {
	out := make([]WaveHeader, len(s.tables))
	for i := range s.tables {
		out[i] = s.tables[i].WaveHeader
	}
	return out
}

// Load validates a header + sample block and copies it into the arena.
// All checks run before the store is modified.
func (s *WaveTableStore) Load(data []byte) Result {
	if len(s.tables) >= maxWaveTables {
		return ResultOutOfResources
	}
	h, res := ParseWaveHeader(data)
	if res != ResultOK {
		return res
	}
	if h.Size <= 0 {
		return ResultNoData
	}
	if !h.checkLoop() {
		return ResultLoopOutOfRange
	}
	if s.total+int(h.Size) > waveBudget {
		return ResultOutOfResources
	}
	if _, ok := s.find(h.ID); ok {
		return ResultDuplicateWaveTable
	}
	if len(data)-waveHeaderSize < int(h.Size) {
		return ResultNoData
	}

	copy(s.arena[s.total:], data[waveHeaderSize:waveHeaderSize+int(h.Size)])
	s.tables = append(s.tables, WaveTable{WaveHeader: h, offset: s.total})
	s.total += int(h.Size)
	return ResultOK
}

// Unload removes the table with the given id and compacts the arena.
// id -1 removes every table.
func (s *WaveTableStore) Unload(id int32) Result {
	if id == -1 {
		s.Clear()
		return ResultOK
	}
	idx, ok := s.find(id)
	if !ok {
		return ResultNoWaveTable
	}

	t := s.tables[idx]
	end := t.offset + int(t.Size)
	copy(s.arena[t.offset:], s.arena[end:s.total])
	s.total -= int(t.Size)
	clear(s.arena[s.total:end])

	s.tables = append(s.tables[:idx], s.tables[idx+1:]...)
	for i := idx; i < len(s.tables); i++ {
		s.tables[i].offset -= int(t.Size)
	}
	return ResultOK
}

// Clear removes every table.
func (s *WaveTableStore) Clear() {
	s.tables = s.tables[:0]
	clear(s.arena[:s.total])
	s.total = 0
}

// LoadSamples copies raw sample bytes into the arena at dest.
func (s *WaveTableStore) LoadSamples(dest int, data []byte) Result {
	if len(data) == 0 {
		return ResultNoData
	}
	if dest < 0 || dest+len(data) > waveArenaSize {
		return ResultInvalidParam
	}
	copy(s.arena[dest:], data)
	return ResultOK
}

// Lookup returns the table with the given id.
func (s *WaveTableStore) Lookup(id int32) (*WaveTable, bool) {
	idx, ok := s.find(id)
	if !ok {
		return nil, false
	}
	return &s.tables[idx], true
}

// samples returns the arena slice backing t.
func (s *WaveTableStore) samples(t *WaveTable) []byte {
	return s.arena[t.offset : t.offset+int(t.Size)]
}

func (s *WaveTableStore) find(id int32) (int, bool) {
	for i := range s.tables {
		if s.tables[i].ID == id {
			return i, true
		}
	}
	return -1, false
}
