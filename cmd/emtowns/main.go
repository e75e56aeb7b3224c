// Command emtowns plays, renders and inspects command scripts for the
// emulated sound chipset.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/term"

	"github.com/user-none/emtowns/cli"
	"github.com/user-none/emtowns/config"
	"github.com/user-none/emtowns/emu"
	"github.com/user-none/emtowns/emu/log"
	"github.com/user-none/emtowns/script"
	"github.com/user-none/emtowns/ui"
	"github.com/user-none/emtowns/wavout"
)

const version = "0.1.0"

func main() {
	args := parseArgs(os.Args[1:])

	switch args.mode {
	case versionMode:
		fmt.Println("emtowns", version)
		return
	case convertMode:
		checkf(convert(args.Convert), "convert")
		return
	}

	cfg := loadConfig(args.Config)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args.mode {
	case playMode:
		checkf(play(ctx, cfg, args.Play), "play")
	case renderMode:
		checkf(render(ctx, cfg, args.Render), "render")
	case dumpMode:
		checkf(dump(cfg, args.Dump), "dump")
	}
}

func loadConfig(path string) config.Config {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			log.ModEmu.Warnf("%v, using defaults", err)
			return config.Default()
		}
	}
	cfg, err := config.Load(path)
	checkf(err, "failed to load config %s", path)
	return cfg
}

// newSynth creates a configured synth and a player for the script at
// path, attached as the timer driver.
func newSynth(cfg config.Config, path string) (*emu.Synth, *script.Player, error) {
	sc, err := script.Load(path)
	if err != nil {
		return nil, nil, err
	}
	s := emu.New(cfg.Options())
	if err := cfg.Apply(s); err != nil {
		return nil, nil, err
	}
	p := script.NewPlayer(sc, s.SampleRate())
	if err := s.Attach(p); err != nil {
		return nil, nil, err
	}
	log.ModEmu.Infof("%s: %d steps, %d ticks at %d Hz", path, len(sc.Steps), p.End(), s.SampleRate())
	return s, p, nil
}

func play(ctx context.Context, cfg config.Config, args Play) error {
	s, p, err := newSynth(cfg, args.Script)
	if err != nil {
		return err
	}

	rate := cfg.Audio.SampleRate
	if args.Rate > 0 {
		rate = args.Rate
	}
	if rate == 0 {
		rate = s.SampleRate()
	}
	volume := cfg.Audio.Volume
	if args.Volume >= 0 {
		volume = args.Volume
	}

	player, err := ui.NewAudioPlayer(rate, volume, time.Duration(cfg.Audio.LatencyMs)*time.Millisecond)
	if err != nil {
		return err
	}
	defer player.Close()

	r := cli.NewRunner(s, p, player, rate)
	if args.Ticks > 0 {
		r.SetEnd(args.Ticks)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		restore, err := keyControl(r)
		if err != nil {
			log.ModAudio.Warnf("keyboard control unavailable: %v", err)
		} else {
			defer restore()
			fmt.Fprint(os.Stderr, "space: pause/resume, q: quit\r\n")
		}
	}

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// keyControl puts the terminal in raw mode and maps keys to the runner's
// control. The returned function restores the terminal.
func keyControl(r *cli.Runner) (func(), error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	go func() {
		in := bufio.NewReader(os.Stdin)
		for {
			b, err := in.ReadByte()
			if err != nil {
				return
			}
			switch b {
			case ' ':
				r.Control().Toggle()
			case 'q', 'Q', 3: // 3 is ^C, not delivered as a signal in raw mode
				r.Stop()
				return
			}
		}
	}()

	return func() { term.Restore(fd, state) }, nil
}

func render(ctx context.Context, cfg config.Config, args Render) error {
	s, p, err := newSynth(cfg, args.Script)
	if err != nil {
		return err
	}
	rate := args.Rate
	if rate == 0 {
		rate = s.SampleRate()
	}

	var sink cli.Sink
	if args.Output == "-" {
		if term.IsTerminal(int(os.Stdout.Fd())) && !args.Force {
			return fmt.Errorf("refusing to write raw PCM to a terminal (use --force)")
		}
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		sink = rawSink{w: out}
	} else {
		w, err := wavout.Create(args.Output, rate)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := w.Close(); cerr != nil {
				log.ModAudio.Errorf("%v", cerr)
			}
		}()
		sink = w
	}

	r := cli.NewRunner(s, p, sink, rate)
	if args.Ticks > 0 {
		r.SetEnd(args.Ticks)
	}
	return r.Run(ctx)
}

// rawSink writes signed 16-bit little-endian interleaved stereo.
type rawSink struct{ w io.Writer }

func (rs rawSink) WriteSamples(samples []int16) error {
	return binary.Write(rs.w, binary.LittleEndian, samples)
}

func dump(cfg config.Config, args Dump) error {
	s, p, err := newSynth(cfg, args.Script)
	if err != nil {
		return err
	}
	end := p.End()
	if args.Ticks > 0 {
		end = args.Ticks
	}

	buf := make([]int32, 2*4096)
	for p.Tick() < end {
		n := int(min(end-p.Tick(), 4096))
		p.Render(s, buf, n)
	}

	st := s.Snapshot()
	if !args.Shadow {
		st.Shadow = [2][256]uint8{}
	}
	cs := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	cs.Fdump(os.Stdout, st)
	if n := p.Rejected(); n > 0 {
		fmt.Fprintf(os.Stdout, "%d commands rejected\n", n)
	}
	return nil
}

func convert(args Convert) error {
	sc, err := script.Load(args.Script)
	if err != nil {
		return err
	}
	out := append(sc.EncodeJSON(), '\n')
	if args.Output == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(args.Output, out, 0644)
}
