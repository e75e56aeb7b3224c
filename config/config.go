// Package config holds the user configuration, stored as TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/user-none/emtowns/emu"
	"github.com/user-none/emtowns/emu/log"
)

type ChipConfig struct {
	ClockHz      int  `toml:"clock_hz"`
	ExternalLock bool `toml:"external_lock"`
}

type AudioConfig struct {
	SampleRate int     `toml:"sample_rate"` // device rate, 0 for the chip's native rate
	Volume     float64 `toml:"volume"`
	LatencyMs  int     `toml:"latency_ms"`
}

// GroupVolume holds one output group's levels, 0-127. The effective gain
// of a side is the product of its level and its master level.
type GroupVolume struct {
	Left        int `toml:"left"`
	Right       int `toml:"right"`
	MasterLeft  int `toml:"master_left"`
	MasterRight int `toml:"master_right"`
}

type VolumeConfig struct {
	Music GroupVolume `toml:"music"`
	SFX   GroupVolume `toml:"sfx"`
	CD    GroupVolume `toml:"cd"`
	Aux   GroupVolume `toml:"aux"`
	Mute  uint16      `toml:"mute"`
}

type PathsConfig struct {
	RhythmROM  string   `toml:"rhythm_rom"`
	WaveTables []string `toml:"wave_tables"`
}

type Config struct {
	Chip   ChipConfig   `toml:"chip"`
	Audio  AudioConfig  `toml:"audio"`
	Volume VolumeConfig `toml:"volume"`
	Paths  PathsConfig  `toml:"paths"`
}

const (
	DefaultFileMode = os.FileMode(0755)
	cfgFilename     = "config.toml"
)

var full = GroupVolume{Left: 127, Right: 127, MasterLeft: 127, MasterRight: 127}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Chip: ChipConfig{ClockHz: emu.DefaultClockHz},
		Audio: AudioConfig{
			SampleRate: 48000,
			Volume:     1.0,
			LatencyMs:  100,
		},
		Volume: VolumeConfig{
			Music: full,
			SFX:   full,
			CD:    full,
			Aux:   full,
		},
	}
}

// Dir returns the emtowns directory under the user config directory,
// creating it if needed.
func Dir() (string, error) {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: user config directory: %w", err)
	}
	dir := filepath.Join(cfgdir, "emtowns")
	if err := os.MkdirAll(dir, DefaultFileMode); err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the path of the config file in Dir.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cfgFilename), nil
}

// Load reads the file at path over the defaults. A missing file is not an
// error. Relative paths in the [paths] table are resolved against the
// file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		log.ModEmu.Debugf("no config at %s, using defaults", path)
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("config: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.ModEmu.Warnf("config %s: unknown key %s", path, key)
	}

	dir := filepath.Dir(path)
	cfg.Paths.RhythmROM = resolve(dir, cfg.Paths.RhythmROM)
	for i, p := range cfg.Paths.WaveTables {
		cfg.Paths.WaveTables[i] = resolve(dir, p)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Chip.ClockHz < 0 {
		return fmt.Errorf("config: chip.clock_hz %d is negative", c.Chip.ClockHz)
	}
	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("config: audio.sample_rate %d is negative", c.Audio.SampleRate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("config: audio.volume %g outside [0, 1]", c.Audio.Volume)
	}
	for _, g := range c.Volume.groups() {
		for _, l := range []int{g.v.Left, g.v.Right, g.v.MasterLeft, g.v.MasterRight} {
			if l < 0 || l > 127 {
				return fmt.Errorf("config: volume.%s level %d outside [0, 127]", g.name, l)
			}
		}
	}
	return nil
}

type namedGroup struct {
	name  string
	group int
	v     GroupVolume
}

func (v VolumeConfig) groups() []namedGroup {
	return []namedGroup{
		{"music", emu.GroupMusic, v.Music},
		{"sfx", emu.GroupSFX, v.SFX},
		{"cd", emu.GroupCD, v.CD},
		{"aux", emu.GroupAux, v.Aux},
	}
}

// Options returns the synth options.
func (c Config) Options() emu.Options {
	return emu.Options{ClockHz: c.Chip.ClockHz, ExternalLock: c.Chip.ExternalLock}
}

// Apply sets the output levels and mute mask, then loads the rhythm rom
// and wave tables named in [paths].
func (c Config) Apply(s *emu.Synth) error {
	for _, g := range c.Volume.groups() {
		cmds := []emu.SetOutputVolume{
			{Group: g.group, Left: g.v.Left, Right: g.v.Right},
			{Group: g.group | emu.MasterBank, Left: g.v.MasterLeft, Right: g.v.MasterRight},
		}
		for _, cmd := range cmds {
			if err := s.Process(cmd).Err(); err != nil {
				return fmt.Errorf("config: volume.%s: %w", g.name, err)
			}
		}
	}
	if err := s.Process(emu.SetOutputMute{Flags: int(c.Volume.Mute)}).Err(); err != nil {
		return fmt.Errorf("config: mute: %w", err)
	}

	if p := c.Paths.RhythmROM; p != "" {
		rom, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("config: rhythm rom: %w", err)
		}
		if err := s.LoadRhythmROM(rom); err != nil {
			return fmt.Errorf("config: rhythm rom %s: %w", p, err)
		}
	}
	for _, p := range c.Paths.WaveTables {
		buf, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("config: wave table: %w", err)
		}
		if err := s.Process(emu.LoadWaveTable{Data: buf}).Err(); err != nil {
			return fmt.Errorf("config: wave table %s: %w", p, err)
		}
	}
	return nil
}
