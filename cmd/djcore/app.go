package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/koustreak/djcore/internal/config"
	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/filestore"
	"github.com/koustreak/djcore/internal/filestore/minio"
	"github.com/koustreak/djcore/internal/logger"
)

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return "usage: " + e.msg }

func usage(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// app carries what every command needs. Tests fill engineOpts and store
// to run commands without a database or object store.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log *logger.Logger

	engineOpts []engine.Option
	store      filestore.Store
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("djcore", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	cfgPath := fs.String("config", "", "path to the YAML configuration file")
	level := fs.String("log-level", "", "override log.level")
	if err := fs.Parse(args); err != nil {
		return usage("%v", err)
	}
	if fs.NArg() == 0 {
		return usage("djcore [-config file] <exec|fetch|tables|hash|attach|serve> [options]")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	cfg.Log.Output = a.stderr
	a.cfg = cfg
	a.log = logger.New(&cfg.Log)
	logger.SetGlobal(a.log)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "exec":
		return a.cmdExec(rest)
	case "fetch":
		return a.cmdFetch(rest)
	case "tables":
		return a.cmdTables(rest)
	case "hash":
		return a.cmdHash(rest)
	case "attach":
		return a.cmdAttach(ctx, rest)
	case "serve":
		return a.cmdServe(ctx, rest)
	}
	return usage("unknown command %q", cmd)
}

// connect opens a connection from the configuration. The returned func
// closes the connection and the engine.
func (a *app) connect() (*core.Connection, func(), error) {
	opts := append(a.cfg.EngineOptions(a.log), a.engineOpts...)
	eng := engine.New(opts...)

	settings := core.NewSettings(eng)
	if err := a.cfg.ApplyTo(settings); err != nil {
		settings.Close()
		eng.Close()
		return nil, nil, err
	}
	conn, err := core.Open(eng, settings, core.WithLogger(a.log))
	if err != nil {
		// No-op once the connection took ownership.
		settings.Close()
		eng.Close()
		return nil, nil, err
	}
	return conn, func() {
		conn.Close()
		eng.Close()
	}, nil
}

// attachments opens the configured attachment store.
func (a *app) attachments(ctx context.Context) (*filestore.Attachments, func(), error) {
	store := a.store
	if store == nil {
		if !a.cfg.ExternalEnabled() {
			return nil, nil, usage("no attachment store configured: set external.bucket")
		}
		d, err := minio.New(ctx, &a.cfg.External)
		if err != nil {
			return nil, nil, err
		}
		store = d
	}
	return filestore.NewAttachments(store, a.cfg.External.Location), func() { store.Close() }, nil
}

// parseArg turns a command-line word into a statement argument: "null",
// integers, decimals, true/false, and text for everything else. A leading
// "s:" forces text.
func parseArg(s string) any {
	if t, ok := strings.CutPrefix(s, "s:"); ok {
		return t
	}
	switch s {
	case "null", "NULL":
		return nil
	case "true":
		return core.Bool(true)
	case "false":
		return core.Bool(false)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseArgs(words []string) []any {
	out := make([]any, len(words))
	for i, w := range words {
		out[i] = parseArg(w)
	}
	return out
}
