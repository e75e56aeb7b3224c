package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/user-none/emtowns/emu/log"
)

type mode byte

const (
	playMode    mode = iota // Play a script on the audio device
	renderMode              // Render a script to a file
	dumpMode                // Print the synth state after a script
	convertMode             // Convert a script to JSON
	versionMode             // Show version
)

type (
	CLI struct {
		Play    Play    `cmd:"" help:"Play a command script on the audio device."`
		Render  Render  `cmd:"" help:"Render a command script to a WAV file or raw PCM."`
		Dump    Dump    `cmd:"" help:"Run a script silently and print the synth state."`
		Convert Convert `cmd:"" help:"Convert a Lua or JSON script to JSON."`
		Version Version `cmd:"" help:"Show emtowns version."`

		Config string     `name:"config" help:"${config_help}" type:"path" placeholder:"FILE"`
		Log    logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`

		mode mode
	}

	Play struct {
		Script string  `arg:"" name:"/path/to/script" help:"${script_help}" type:"existingfile"`
		Rate   int     `name:"rate" help:"Device sample rate (overrides the config)."`
		Volume float64 `name:"volume" help:"Playback volume, 0 to 1." default:"-1"`
		Ticks  uint64  `name:"ticks" help:"Stop after this many ticks instead of at the script end."`
	}

	Render struct {
		Script string `arg:"" name:"/path/to/script" help:"${script_help}" type:"existingfile"`
		Output string `name:"output" short:"o" help:"Output WAV file, or - for raw PCM on stdout." required:"" placeholder:"FILE|-"`
		Rate   int    `name:"rate" help:"Output sample rate, 0 for the chip's native rate." default:"0"`
		Ticks  uint64 `name:"ticks" help:"Render this many ticks instead of to the script end."`
		Force  bool   `name:"force" help:"Write raw PCM even when stdout is a terminal."`
	}

	Dump struct {
		Script string `arg:"" name:"/path/to/script" help:"${script_help}" type:"existingfile"`
		Ticks  uint64 `name:"ticks" help:"Run this many ticks instead of to the script end."`
		Shadow bool   `name:"shadow" help:"Include the FM register shadow."`
	}

	Convert struct {
		Script string `arg:"" name:"/path/to/script" help:"${script_help}" type:"existingfile"`
		Output string `name:"output" short:"o" help:"Output file (default stdout)." type:"path"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"script_help": "Command script, .json or .lua.",
	"config_help": "Configuration file (default: config.toml in the user config directory).",
	"log_help":    "Enable logging for specified modules.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("emtowns"),
		kong.Description("FM/PCM sound chipset emulator. github.com/user-none/emtowns"),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch strings.Fields(ctx.Command())[0] {
	case "play":
		cfg.mode = playMode
	case "render":
		cfg.mode = renderMode
	case "dump":
		cfg.mode = dumpMode
	case "convert":
		cfg.mode = convertMode
	default:
		cfg.mode = versionMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
	var strs []string
	for _, m := range log.ModuleNames() {
		strs = append(strs, "    - "+m)
	}
	fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return fmt.Errorf("unknown log module %s", v)
			}
			lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return fmt.Errorf("cannot use 'all' and 'no' together")
		}
		if lm != 0 {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(lm))
	return nil
}

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
