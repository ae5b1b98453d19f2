package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ergochat/readline"
	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/nandit123/crdt-text-editor-2/versions"
	"github.com/nandit123/crdt-text-editor-2/view"
	"github.com/prometheus/client_golang/prometheus"
)

// replica is one in-process participant with its own view.
type replica struct {
	name string
	doc  *doc.Doc
	log  *versions.Log
	view *view.View
	proj *view.Projector
}

func (r *replica) Close() error {
	_ = r.view.Close()
	return r.doc.Close()
}

// REPL per se.
type REPL struct {
	cfg      *Config
	logger   utils.Logger
	registry *prometheus.Registry
	replicas []*replica
	cur      *replica
	rl       *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("use"),
	readline.PcItem("insert"),
	readline.PcItem("delete"),
	readline.PcItem("text"),

	readline.PcItem("snapshot"),
	readline.PcItem("versions"),
	readline.PcItem("show"),
	readline.PcItem("live",
		readline.PcItem("on"),
		readline.PcItem("off"),
	),
	readline.PcItem("unrender"),

	readline.PcItem("sync"),
	readline.PcItem("vv"),
	readline.PcItem("metrics"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func (repl *REPL) openReplica(rc ReplicaConfig) (*replica, error) {
	opts := doc.Options{Src: rc.Src, Name: rc.Name, Logger: repl.logger}
	dir := filepath.Join(repl.cfg.DataDir, rc.Name)
	if repl.cfg.InMemory {
		opts.Options = pebble.Options{FS: vfs.NewMem()}
	}
	d, err := doc.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	v := view.New(d, repl.cfg.Field, view.Options{Logger: repl.logger})
	r := &replica{
		name: rc.Name,
		doc:  d,
		log:  versions.NewLog(d),
		view: v,
		proj: view.NewProjector(v, view.ProjectorOptions{
			SettleDelay: repl.cfg.SettleDelay,
			Logger:      repl.logger,
		}),
	}
	repl.registry.MustRegister(doc.NewCollector(d))
	return r, nil
}

func (repl *REPL) Open(cfg *Config) (err error) {
	repl.cfg = cfg
	level, err := utils.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	repl.logger = utils.NewDefaultLogger(level)
	repl.registry = prometheus.NewRegistry()
	repl.registry.MustRegister(doc.OpsApplied, versions.CaptureResults)
	for _, rc := range cfg.Replicas {
		r, err := repl.openReplica(rc)
		if err != nil {
			_ = repl.Close()
			return fmt.Errorf("replica %s: %w", rc.Name, err)
		}
		repl.replicas = append(repl.replicas, r)
	}
	repl.cur = repl.replicas[0]
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          repl.prompt(),
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold: true,
	})
	if err != nil {
		_ = repl.Close()
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) prompt() string {
	return repl.cur.name + " ◌ "
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	for _, r := range repl.replicas {
		if err := r.Close(); err != nil {
			repl.logger.Error("closing replica", "name", r.name, "err", err)
		}
	}
	repl.replicas = nil
	return nil
}

func (repl *REPL) replica(name string) (*replica, error) {
	for _, r := range repl.replicas {
		if r.name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no replica %q", name)
}

func (repl *REPL) authorName(src uint64) string {
	for _, r := range repl.replicas {
		if r.doc.Source() == src {
			return r.name
		}
	}
	return fmt.Sprintf("%x", src)
}

var ErrUnknownCommand = errors.New("command unknown, try help")

func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	cmd, args := splitCommand(line)
	if cmd == "" {
		return nil
	}
	ctx := utils.WithDefaultArgs(context.Background(), "replica", repl.cur.name)
	switch cmd {
	case "help":
		err = repl.CommandHelp(args)
	case "use":
		err = repl.CommandUse(args)
	case "insert":
		err = repl.CommandInsert(ctx, args)
	case "delete":
		err = repl.CommandDelete(ctx, args)
	case "text":
		err = repl.CommandText(args)
	case "snapshot":
		err = repl.CommandSnapshot(ctx, args)
	case "versions":
		err = repl.CommandVersions(args)
	case "show":
		err = repl.CommandShow(args)
	case "live":
		err = repl.CommandLive(args)
	case "unrender":
		err = repl.CommandUnrender(args)
	case "sync":
		err = repl.CommandSync(ctx, args)
	case "vv":
		err = repl.CommandVV(args)
	case "metrics":
		err = repl.CommandMetrics(args)
	case "exit", "quit":
		err = io.EOF
	default:
		err = ErrUnknownCommand
	}
	return
}

func splitCommand(line string) (cmd string, args string) {
	line = strings.TrimSpace(line)
	ws := strings.IndexAny(line, " \t\r\n")
	if ws < 0 {
		return line, ""
	}
	return line[:ws], strings.TrimLeft(line[ws:], " \t")
}

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := initConfig(path)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "config:", err.Error())
		os.Exit(-2)
	}
	repl := REPL{}
	if err = repl.Open(cfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	defer repl.Close()

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
		repl.rl.SetPrompt(repl.prompt())
	}
}
