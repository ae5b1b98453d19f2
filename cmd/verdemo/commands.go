package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/nandit123/crdt-text-editor-2/versions"
)

var HelpUse = errors.New("use <replica>")

func (repl *REPL) CommandUse(args string) error {
	if args == "" {
		return HelpUse
	}
	r, err := repl.replica(args)
	if err != nil {
		return err
	}
	repl.cur = r
	return nil
}

var HelpInsert = errors.New("insert <pos> <text>")

func (repl *REPL) CommandInsert(ctx context.Context, args string) error {
	posstr, text, ok := strings.Cut(args, " ")
	pos, err := strconv.Atoi(posstr)
	if !ok || err != nil || text == "" {
		return HelpInsert
	}
	if _, err = repl.cur.view.InsertText(ctx, pos, text); err != nil {
		return err
	}
	return repl.CommandText("")
}

var HelpDelete = errors.New("delete <pos> <n>")

func (repl *REPL) CommandDelete(ctx context.Context, args string) error {
	var pos, n int
	if _, err := fmt.Sscanf(args, "%d %d", &pos, &n); err != nil {
		return HelpDelete
	}
	if _, err := repl.cur.view.DeleteText(ctx, pos, n); err != nil {
		return err
	}
	return repl.CommandText("")
}

// CommandText prints the view of the current replica, marking added
// text as [+...+] and removed text as [-...-].
func (repl *REPL) CommandText(args string) error {
	r := repl.cur
	<-r.view.Flush()
	live := " "
	if r.proj.LiveTracking() {
		live = "●"
	}
	mode := "live"
	if state := r.view.State(); state.Snapshot != nil {
		mode = snapshot.String(*state.Snapshot)
	}
	fmt.Printf("%s [%s] %s\n", live, mode, r.view.Render().Markup())
	return nil
}

func (repl *REPL) CommandSnapshot(ctx context.Context, args string) error {
	v, ok, err := repl.cur.log.Capture(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no changes since the last version")
		return nil
	}
	fmt.Printf("version %d %s\n", repl.cur.log.Len()-1, snapshotText(v.Snapshot))
	return nil
}

func snapshotText(enc []byte) string {
	vv, err := snapshot.Decode(enc)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return snapshot.String(vv)
}

func (repl *REPL) CommandVersions(args string) error {
	listed, err := versions.List(repl.cur.log)
	if err != nil {
		return err
	}
	if len(listed) == 0 {
		fmt.Println("No snapshots..")
		return nil
	}
	for _, l := range listed {
		fmt.Printf("%3d  %s  %-8s %s\n", l.Index,
			l.Version.CapturedAt.Format(time.DateTime),
			repl.authorName(l.Version.AuthorID),
			snapshotText(l.Version.Snapshot))
	}
	return nil
}

var HelpShow = errors.New("show <version index>")

// CommandShow renders a version with the changes since the one before it.
func (repl *REPL) CommandShow(args string) error {
	i, err := strconv.Atoi(args)
	if err != nil {
		return HelpShow
	}
	listed, err := versions.List(repl.cur.log)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(listed) {
		return doc.ErrOutOfRange
	}
	if err = repl.cur.proj.Project(listed[i].Version.Snapshot, listed[i].Prev); err != nil {
		return err
	}
	<-repl.cur.proj.Settled()
	return repl.CommandText("")
}

var HelpLive = errors.New("live on|off")

func (repl *REPL) CommandLive(args string) error {
	var on bool
	switch args {
	case "on":
		on = true
	case "off":
	default:
		return HelpLive
	}
	if err := repl.cur.proj.SetLiveTracking(on, repl.cur.log); err != nil {
		return err
	}
	<-repl.cur.proj.Settled()
	return repl.CommandText("")
}

func (repl *REPL) CommandUnrender(args string) error {
	repl.cur.proj.Unproject()
	<-repl.cur.proj.Settled()
	return repl.CommandText("")
}

var HelpSync = errors.New("sync [<replica> <replica>]")

// CommandSync exchanges ops between two replicas, or among all of them.
func (repl *REPL) CommandSync(ctx context.Context, args string) error {
	names := strings.Fields(args)
	switch len(names) {
	case 0:
		for i := 1; i < len(repl.replicas); i++ {
			if err := doc.SyncDuplex(ctx, repl.replicas[0].doc, repl.replicas[i].doc); err != nil {
				return err
			}
		}
		for i := 1; i < len(repl.replicas)-1; i++ {
			if err := doc.SyncDuplex(ctx, repl.replicas[0].doc, repl.replicas[i].doc); err != nil {
				return err
			}
		}
	case 2:
		a, err := repl.replica(names[0])
		if err != nil {
			return err
		}
		b, err := repl.replica(names[1])
		if err != nil {
			return err
		}
		if err = doc.SyncDuplex(ctx, a.doc, b.doc); err != nil {
			return err
		}
	default:
		return HelpSync
	}
	return repl.CommandVV("")
}

func (repl *REPL) CommandVV(args string) error {
	for _, r := range repl.replicas {
		mark := " "
		if r == repl.cur {
			mark = "*"
		}
		fmt.Printf("%s %-8s %x\t%s\n", mark, r.name, r.doc.Source(), snapshot.String(r.doc.VersionVector()))
	}
	return nil
}

func (repl *REPL) CommandMetrics(args string) error {
	mfs, err := repl.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetGauge().GetValue()
			if m.GetCounter() != nil {
				value = m.GetCounter().GetValue()
			}
			fmt.Printf("%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}

func (repl *REPL) CommandHelp(args string) error {
	_, _ = fmt.Fprint(os.Stdout, `commands:
  use <replica>          switch the current replica
  insert <pos> <text>    insert text at a position
  delete <pos> <n>       delete n characters
  text                   print the view
  snapshot               capture a version
  versions               list versions
  show <i>               render version i against version i-1
  live on|off            follow live edits marked since the last version
  unrender               back to the live view
  sync [<a> <b>]         exchange ops between replicas
  vv                     print version vectors
  metrics                print metrics
  exit
`)
	return nil
}
