// Package main provides the cutsim command: a virtual cutting plotter that
// runs Lua jobs, saves the result as an image and can show the canvas live
// in a window or over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/preview"
	"github.com/opd-ai/go-cutsim/pkg/cutsim"
)

// Version is the current version of cutsim.
// This default value can be overridden at build time using:
//
//	go build -ldflags "-X main.Version=x.y.z"
var Version = "0.1.0-dev"

// shutdownTimeout bounds the preview server shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath string
	output     string
	job        string
	watch      bool
	preview    bool
	serve      string
	mdns       bool
	logLevel   string
	logJSON    bool
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("cutsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "c", "", "Path to Lua configuration file (defaults are used when empty)")
	fs.StringVar(&o.output, "o", "", "Output target: image path or ssh://[user@]host[:port]/path")
	fs.StringVar(&o.job, "job", "", "Lua job script to run")
	fs.BoolVar(&o.watch, "watch", false, "Re-run the job whenever it changes")
	fs.BoolVar(&o.preview, "preview", false, "Show the canvas in a window")
	fs.StringVar(&o.serve, "serve", "", "Serve snapshots and a websocket stream on this address, e.g. :8080")
	fs.BoolVar(&o.mdns, "mdns", false, "Advertise the preview server over mDNS")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&o.logJSON, "log-json", false, "Log as JSON")
	fs.BoolVar(&o.version, "v", false, "Print version and exit")
	err := fs.Parse(args)
	return o, err
}

// apply overrides configuration values with command line flags.
func (o options) apply(cfg *config.Config) {
	if o.output != "" {
		cfg.Output.Target = config.ExpandEnv(o.output)
	}
	if o.job != "" {
		cfg.Job.Path = o.job
	}
	if o.watch {
		cfg.Job.Watch = true
	}
	if o.preview {
		cfg.Preview.Enabled = true
	}
	if o.serve != "" {
		cfg.Serve.Address = o.serve
	}
	if o.mdns {
		cfg.Serve.MDNS = true
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		return &cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("error accessing configuration file %s: %w", path, err)
	}
	p := config.NewParser()
	defer p.Close()
	return p.ParseFile(path)
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.version {
		fmt.Fprintf(stdout, "cutsim version %s\n", Version)
		return 0
	}

	level, err := cutsim.ParseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := cutsim.NewLogger(stderr, level, o.logJSON)

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}
	o.apply(cfg)

	result := config.NewValidator().Validate(cfg)
	for _, w := range result.Warnings {
		logger.Warn("configuration warning", "field", w.Field, "message", w.Message)
	}
	if err := result.Error(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	opts := cutsim.DefaultOptions()
	opts.Logger = logger
	opts.ScriptOutput = stdout
	sim, err := cutsim.NewWithConfig(*cfg, &opts)
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return 1
	}
	defer shutdown(sim, logger)

	sim.Metrics().RegisterExpvar()
	sim.SetErrorHandler(func(err error) {
		logger.Warn("runtime error", "error", err)
	})
	sim.SetEventHandler(func(e cutsim.Event) {
		logger.Debug("event", "type", e.Type.String(), "message", e.Message, "run_id", e.RunID.String())
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Serve.Address != "" {
		srv := preview.NewServer(sim, preview.Config{
			Address:   cfg.Serve.Address,
			Interval:  cfg.Serve.Interval,
			MDNS:      cfg.Serve.MDNS,
			MDNSName:  cfg.Serve.MDNSName,
			DebugVars: true,
			ErrorHandler: func(err error) {
				logger.Warn("preview server error", "error", err)
			},
		})
		if err := srv.Start(); err != nil {
			logger.Error("failed to start preview server", "error", err)
			return 1
		}
		if addr, err := srv.Addr(); err == nil {
			logger.Info("preview server listening", "addr", addr.String(), "mdns", cfg.Serve.MDNS)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("preview server shutdown", "error", err)
			}
		}()
	}

	interactive := cfg.Job.Watch || cfg.Preview.Enabled || cfg.Serve.Address != ""

	if cfg.Job.Path != "" {
		if err := sim.RunJob(cfg.Job.Path); err != nil {
			logger.Error("job failed", "job", cfg.Job.Path, "error", err)
			if !interactive {
				return 1
			}
		}
		if cfg.Job.Watch {
			if err := sim.WatchJob(cfg.Job.Path); err != nil {
				logger.Error("failed to watch job", "error", err)
				return 1
			}
		}
	}

	if cfg.Preview.Enabled {
		if err := runWindow(ctx, sim, cfg, logger); err != nil {
			logger.Error("preview window failed", "error", err)
			return 1
		}
		return 0
	}

	if interactive {
		logger.Info("running, press Ctrl+C to exit")
		<-ctx.Done()
	}
	return 0
}

// shutdown stops a run left open by a job, saving its canvas, and closes
// the simulator.
func shutdown(sim cutsim.Simulator, logger cutsim.Logger) {
	if st := sim.Status(); st.Running || st.CanvasAllocated {
		logger.Info("stopping unfinished run")
		if err := sim.Stop(); err != nil {
			logger.Error("stop failed", "error", err)
		}
	}
	if err := sim.Close(); err != nil {
		logger.Error("close failed", "error", err)
	}
}
