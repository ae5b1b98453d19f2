// Package view renders one text field of a replicated document, either
// live or as of a causal frontier, optionally marking what changed
// since a baseline frontier.
package view

import (
	"context"
	"encoding/binary"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/pkg/errors"
)

var ErrReadOnly = errors.New("view: a historical snapshot is rendered")

type Mark byte

const (
	None Mark = iota
	Added
	Removed
)

var markNames = []string{"none", "added", "removed"}

func (m Mark) String() string {
	if int(m) < len(markNames) {
		return markNames[m]
	}
	return "Mark(" + strconv.Itoa(int(m)) + ")"
}

// Color is an author color: Dark for text marks, Light for backgrounds.
type Color struct {
	Light string
	Dark  string
}

var Palette = []Color{
	{Light: "#ecd44433", Dark: "#ecd444"},
	{Light: "#ee635233", Dark: "#ee6352"},
	{Light: "#6eeb8333", Dark: "#6eeb83"},
}

// AuthorColor picks a stable palette entry for a replica.
func AuthorColor(src uint64) Color {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], src)
	return Palette[xxhash.Sum64(b[:])%uint64(len(Palette))]
}

// Segment is a run of text with the same mark and author.
type Segment struct {
	Text   string
	Mark   Mark
	Author uint64
	Color  Color
}

type Rendering struct {
	Segments []Segment
}

// Text is what the view shows, removed segments excluded.
func (r Rendering) Text() string {
	var b strings.Builder
	for _, s := range r.Segments {
		if s.Mark != Removed {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// Markup shows added text as [+text+] and removed text as [-text-].
func (r Rendering) Markup() string {
	var b strings.Builder
	for _, s := range r.Segments {
		switch s.Mark {
		case Added:
			b.WriteString("[+" + s.Text + "+]")
		case Removed:
			b.WriteString("[-" + s.Text + "-]")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// Meta asks the view to render the document as of Snapshot and to mark
// changes since PrevSnapshot. A nil Snapshot follows the live state; both
// nil is the plain live view.
type Meta struct {
	Snapshot     *rdx.VV
	PrevSnapshot *rdx.VV
}

// SyncState is what the view currently renders.
type SyncState struct {
	Snapshot     *rdx.VV
	PrevSnapshot *rdx.VV
	Binding      *Binding
}

// Binding ties a view to its document.
type Binding struct {
	view *View
}

// UnrenderSnapshot releases any snapshot constraint.
func (b *Binding) UnrenderSnapshot() <-chan struct{} {
	return b.view.Dispatch(Meta{})
}

type request struct {
	meta    Meta
	refresh bool
	done    chan struct{}
}

type Options struct {
	Logger utils.Logger
	// Queue is the number of requests that can wait for the worker.
	Queue int
}

// View renders a text field on its own goroutine. Requests are applied
// in the order they were dispatched.
type View struct {
	doc   *doc.Doc
	field string
	log   utils.Logger

	reqs    chan request
	quit    chan struct{}
	pending atomic.Bool
	cancel  func()
	wg      sync.WaitGroup
	once    sync.Once

	// qlock orders queueing against Close
	qlock  sync.RWMutex
	closed bool

	lock      sync.RWMutex
	state     SyncState
	rendering Rendering
	binding   *Binding
}

func New(d *doc.Doc, field string, opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if opts.Queue <= 0 {
		opts.Queue = 16
	}
	v := &View{
		doc:   d,
		field: field,
		log:   opts.Logger,
		reqs:  make(chan request, opts.Queue),
		quit:  make(chan struct{}),
	}
	v.binding = &Binding{view: v}
	v.state.Binding = v.binding
	v.rendering = v.render(Meta{})
	v.cancel = d.Observe(field, v.changed)
	v.wg.Add(1)
	go v.run()
	return v
}

// Close stops the worker. Requests it did not get to are completed
// unapplied.
func (v *View) Close() error {
	v.once.Do(func() {
		v.cancel()
		v.qlock.Lock()
		v.closed = true
		v.qlock.Unlock()
		close(v.quit)
		v.wg.Wait()
		for {
			select {
			case req := <-v.reqs:
				close(req.done)
			default:
				return
			}
		}
	})
	return nil
}

func (v *View) run() {
	defer v.wg.Done()
	for {
		select {
		case req := <-v.reqs:
			v.apply(req)
		case <-v.quit:
			return
		}
	}
}

func (v *View) apply(req request) {
	v.lock.RLock()
	meta := Meta{Snapshot: v.state.Snapshot, PrevSnapshot: v.state.PrevSnapshot}
	v.lock.RUnlock()
	if req.refresh {
		v.pending.Store(false)
		if meta.Snapshot != nil {
			// a fixed frontier renders the same forever
			close(req.done)
			return
		}
	} else {
		meta = req.meta
	}
	r := v.render(meta)
	v.lock.Lock()
	v.state.Snapshot = meta.Snapshot
	v.state.PrevSnapshot = meta.PrevSnapshot
	v.rendering = r
	v.lock.Unlock()
	v.log.Debug("view: rendered", "field", v.field,
		"snapshot", vvString(meta.Snapshot), "prev", vvString(meta.PrevSnapshot))
	close(req.done)
}

func vvString(vv *rdx.VV) string {
	if vv == nil {
		return "live"
	}
	return snapshot.String(*vv)
}

// Dispatch queues a sync state change. The returned channel is closed
// once State and Render reflect it.
func (v *View) Dispatch(meta Meta) <-chan struct{} {
	return v.enqueue(request{meta: cloneMeta(meta), done: make(chan struct{})})
}

func (v *View) enqueue(req request) <-chan struct{} {
	v.qlock.RLock()
	defer v.qlock.RUnlock()
	if v.closed {
		close(req.done)
	} else {
		v.reqs <- req
	}
	return req.done
}

func cloneMeta(meta Meta) Meta {
	clone := func(vv *rdx.VV) *rdx.VV {
		if vv == nil {
			return nil
		}
		c := vv.Clone()
		return &c
	}
	return Meta{Snapshot: clone(meta.Snapshot), PrevSnapshot: clone(meta.PrevSnapshot)}
}

// changed re-renders after a document change; refreshes coalesce.
func (v *View) changed(doc.Event) {
	if !v.pending.CompareAndSwap(false, true) {
		return
	}
	v.enqueue(request{refresh: true, done: make(chan struct{})})
}

// Flush returns a channel closed once every change dispatched or
// observed so far is rendered.
func (v *View) Flush() <-chan struct{} {
	return v.enqueue(request{refresh: true, done: make(chan struct{})})
}

func (v *View) State() SyncState {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.state
}

func (v *View) Render() Rendering {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.rendering
}

func (v *View) render(meta Meta) (r Rendering) {
	items, cur := v.doc.Items(v.field)
	target := cur
	if meta.Snapshot != nil {
		target = *meta.Snapshot
	}
	for i := range items {
		it := &items[i]
		mark := None
		inT := it.VisibleAt(target)
		if meta.PrevSnapshot != nil {
			inB := it.VisibleAt(*meta.PrevSnapshot)
			switch {
			case inT && !inB:
				mark = Added
			case !inT && inB:
				mark = Removed
			case !inT:
				continue
			}
		} else if !inT {
			continue
		}
		author := it.ID.Src()
		n := len(r.Segments)
		if n > 0 && r.Segments[n-1].Mark == mark && r.Segments[n-1].Author == author {
			r.Segments[n-1].Text += string(it.Value)
			continue
		}
		r.Segments = append(r.Segments, Segment{
			Text:   string(it.Value),
			Mark:   mark,
			Author: author,
			Color:  AuthorColor(author),
		})
	}
	return
}

func (v *View) editable() error {
	if v.State().Snapshot != nil {
		return ErrReadOnly
	}
	return nil
}

// InsertText edits the document through the view, at a position of the
// live text.
func (v *View) InsertText(ctx context.Context, pos int, text string) (rdx.ID, error) {
	if err := v.editable(); err != nil {
		return rdx.BadId, err
	}
	return v.doc.InsertText(ctx, v.field, pos, text)
}

func (v *View) DeleteText(ctx context.Context, pos, n int) (rdx.ID, error) {
	if err := v.editable(); err != nil {
		return rdx.BadId, err
	}
	return v.doc.DeleteText(ctx, v.field, pos, n)
}
