package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/metcalfc/picbook/internal/audio"
	"github.com/metcalfc/picbook/internal/config"
	"github.com/metcalfc/picbook/internal/library"
	"github.com/metcalfc/picbook/internal/logger"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliOptions struct {
	configPath  string
	libraryDir  string
	bookID      string
	autoplay    bool
	delay       time.Duration
	backend     string
	player      string
	logLevel    string
	logFile     string
	writeConfig bool
	showVersion bool
}

func parseFlags(name string, args []string, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Config file (default: "+config.Path()+")")
	fs.StringVar(&o.libraryDir, "library", "", "Books directory")
	fs.StringVar(&o.bookID, "book", "", "Open this book id directly")
	fs.BoolVar(&o.autoplay, "autoplay", false, "Start the book in autoplay mode (with -book)")
	fs.DurationVar(&o.delay, "delay", 0, "Pause between auto-advanced pages (default 2s)")
	fs.StringVar(&o.backend, "backend", "", "Audio backend: native or process")
	fs.StringVar(&o.player, "player", "", "Player command for the process backend")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFile, "log-file", "", "Log file")
	fs.BoolVar(&o.writeConfig, "write-config", false, "Write the effective config and exit")
	fs.BoolVar(&o.showVersion, "v", false, "Show version information")
	fs.BoolVar(&o.showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s - picture book reader\n\n", name)
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  %s [options]\n\n", name)
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  %s -library ~/books                 Browse a books directory\n", name)
		fmt.Fprintf(stderr, "  %s -book goodnight-moon -autoplay   Read a book aloud\n", name)
		fmt.Fprintf(stderr, "  %s -backend process -player mpv     Play narration with mpv\n", name)
	}
	err := fs.Parse(args)
	return o, err
}

// settings merges the config file with command-line overrides.
func settings(o cliOptions) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.libraryDir != "" {
		cfg.LibraryDir = o.libraryDir
	}
	if o.delay > 0 {
		cfg.AutoplayDelay = config.Duration{Duration: o.delay}
	}
	if o.backend != "" {
		cfg.AudioBackend = o.backend
	}
	if o.player != "" {
		cfg.PlayerCommand = o.player
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	return cfg, cfg.Validate()
}

// newBackend opens the configured audio backend. If the native speaker cannot
// be opened, an external player is tried before giving up.
func newBackend(cfg config.Config, log *logger.Logger) (audio.Backend, error) {
	if cfg.AudioBackend == config.BackendNative {
		b, err := audio.NewNativeBackend(audio.Mode{SampleRate: cfg.SampleRate})
		if err == nil {
			log.Info("audio backend ready", "backend", "native", "rate", cfg.SampleRate)
			return b, nil
		}
		log.Warn("native audio unavailable, trying an external player", "error", err)
	}
	b, err := audio.NewProcessBackend(cfg.PlayerCommand)
	if err != nil {
		return nil, err
	}
	log.Info("audio backend ready", "backend", "process", "player", b.Command())
	return b, nil
}

// env is everything a front end needs to run.
type env struct {
	cfg     config.Config
	opts    cliOptions
	log     *logger.Logger
	lib     *library.Library
	backend audio.Backend
}

// setup parses flags and opens logging, the library and audio. It exits the
// process for -h, -version and -write-config.
func setup(name string) *env {
	o, err := parseFlags(name, os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	if o.showVersion {
		fmt.Printf("%s %s (commit: %s, built: %s)\n", name, version, commit, date)
		os.Exit(0)
	}

	cfg, err := settings(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if o.writeConfig {
		path := o.configPath
		if path == "" {
			path = config.Path()
		}
		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
		os.Exit(0)
	}

	log, err := logger.New("dev", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open log: %v\n", err)
		os.Exit(1)
	}

	lib, err := library.Scan(cfg.LibraryDir, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try: %s -library <dir>\n", name)
		os.Exit(1)
	}

	backend, err := newBackend(cfg, log)
	if err != nil {
		// Reading still works without narration.
		log.Warn("no audio backend, narration disabled", "error", err)
		backend = silentBackend{}
	}

	return &env{cfg: cfg, opts: o, log: log, lib: lib, backend: backend}
}

// silentBackend fails every clip so pages stay readable without audio.
type silentBackend struct{}

func (silentBackend) CreateClip(_ context.Context, src audio.Source) (audio.Clip, error) {
	return nil, audio.NewClipCreationError(src.Name(), audio.ErrBackendUnavailable)
}
