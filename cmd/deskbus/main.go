// Package main is the entry point for the deskbus event engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/config"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/diag"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/engine"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/logging"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/sdk"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/sdk/luaapp"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// drainInterval is how often queued Lua deliveries run.
const drainInterval = 20 * time.Millisecond

type options struct {
	ConfigPath string
	LogLevel   string
	DiagListen string
	Script     string
	AppID      string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, code, done := parseFlags(os.Args[1:])
	if done {
		return code
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize engine")
		return 1
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn().Err(err).Msg("engine close")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	if cfg.Diag.Enabled {
		srv := diag.New(cfg.Diag.Listen, eng, logging.WithComponent(log, "diag"))
		go func() {
			errCh <- srv.Start(ctx)
		}()
	}

	if opts.Script != "" {
		if err := runScript(ctx, eng, opts, log); err != nil {
			log.Error().Err(err).Str("script", opts.Script).Msg("app script failed")
			return 1
		}
	} else {
		log.Info().Str("version", version).Msg("deskbus running")
		<-ctx.Done()
	}

	stop()
	if cfg.Diag.Enabled {
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("diagnostics server")
			return 1
		}
	}
	return 0
}

func parseFlags(args []string) (options, int, bool) {
	var opts options
	var showVersion bool

	fs := flag.NewFlagSet("deskbus", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML configuration file")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to YAML configuration file (shorthand)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
	fs.StringVar(&opts.DiagListen, "diag", "", "Serve diagnostics on this address")
	fs.StringVar(&opts.Script, "script", "", "Run a Lua app script against the engine")
	fs.StringVar(&opts.AppID, "app-id", "script", "App ID granted to the Lua script")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "deskbus - desktop shell event engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: deskbus [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %sLOG_LEVEL, %sNAMESPACE, %sDIAG_LISTEN, %sREDIS_ADDR, %sDEBUGGER_CAPACITY\n",
			config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, 0, true
		}
		return opts, 2, true
	}

	if showVersion {
		fmt.Printf("deskbus %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return opts, 0, true
	}
	return opts, 0, false
}

// loadConfig applies, in order: defaults, the config file, the environment
// and command-line flags.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(config.EnvPrefix); err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.DiagListen != "" {
		cfg.Diag.Enabled = true
		cfg.Diag.Listen = opts.DiagListen
	}
	return cfg, cfg.Validate()
}

// runScript runs a Lua app and drains its deliveries on this goroutine until
// ctx is cancelled.
func runScript(ctx context.Context, eng *engine.Engine, opts options, log zerolog.Logger) error {
	client, err := sdk.NewClient(eng, opts.AppID, sdk.AllPermissions()...)
	if err != nil {
		return err
	}
	defer client.Close()

	L := lua.NewState()
	defer L.Close()

	mod := luaapp.New(client,
		luaapp.WithContext(ctx),
		luaapp.WithLogger(logging.WithComponent(log, "lua").With().Str("app", opts.AppID).Logger()))
	if err := mod.Register(L); err != nil {
		return err
	}
	defer mod.Close()

	if err := L.DoFile(opts.Script); err != nil {
		return fmt.Errorf("load %s: %w", opts.Script, err)
	}
	log.Info().Str("script", opts.Script).Str("app", opts.AppID).Msg("app script loaded")

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, err := mod.Drain()
			return err
		case <-ticker.C:
			// Handler errors are logged by the module.
			_, _ = mod.Drain()
		}
	}
}
