// Package doc is a replicated document: named sequences (texts and
// append-only lists) edited concurrently by replicas that exchange op
// packets. Every replica numbers its ops 1, 2, 3...; the version vector
// of a document is its causal frontier.
package doc

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/pebble"
	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	pebble.Options

	Src    uint64
	Name   string
	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Name == "" {
		o.Name = rdx.IDFromSrcSeqOff(o.Src, 0, 0).String()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

var (
	ErrBadSource      = errors.New("doc: replica id 0 is reserved")
	ErrSourceMismatch = errors.New("doc: store belongs to another replica")
	ErrClosed         = errors.New("doc: no replica open")
	ErrOutOfOrder     = errors.New("doc: op sequence gap")
	ErrOutOfRange     = errors.New("doc: position out of range")
)

// Doc is one replica of a document. It is safe for concurrent use.
type Doc struct {
	src  uint64
	name string
	log  utils.Logger
	db   *pebble.DB

	lock  sync.RWMutex
	vv    rdx.VV
	clock rdx.Clock
	seqs  map[string]*sequence

	observers *xsync.MapOf[uint64, *observer]
	obsSeq    uint64
	obsLock   sync.Mutex
}

// Open opens (or creates) the replica stored in dirname and replays
// its op log. Use opts.FS = vfs.NewMem() for a replica in memory.
func Open(dirname string, opts Options) (*Doc, error) {
	if opts.Src == 0 {
		return nil, ErrBadSource
	}
	opts.SetDefaults()

	db, err := pebble.Open(dirname, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", dirname)
	}
	d := &Doc{
		src:       opts.Src,
		name:      opts.Name,
		log:       opts.Logger,
		db:        db,
		vv:        make(rdx.VV),
		seqs:      make(map[string]*sequence),
		observers: xsync.NewMapOf[uint64, *observer](),
	}
	if err = d.loadReplica(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = d.replay(); err != nil {
		_ = db.Close()
		return nil, err
	}
	d.log.Info("replica open", "name", d.name, "src", d.src, "vv", d.vv.String())
	return d, nil
}

func (d *Doc) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return ErrClosed
	}
	err := d.db.Close()
	d.db = nil
	d.observers.Clear()
	return err
}

// Source is the id of the local replica.
func (d *Doc) Source() uint64 {
	return d.src
}

func (d *Doc) Name() string {
	return d.name
}

func (d *Doc) Logger() utils.Logger {
	return d.log
}

// VersionVector returns a copy of the current causal frontier.
func (d *Doc) VersionVector() rdx.VV {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.vv.Clone()
}

func (d *Doc) seq(field string) *sequence {
	s, ok := d.seqs[field]
	if !ok {
		s = newSequence()
		d.seqs[field] = s
	}
	return s
}

// Len is the number of live items in a field.
func (d *Doc) Len(field string) int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	s, ok := d.seqs[field]
	if !ok {
		return 0
	}
	return len(s.visible())
}

// Values returns the live values of a field, in order.
func (d *Doc) Values(field string) [][]byte {
	d.lock.RLock()
	defer d.lock.RUnlock()
	s, ok := d.seqs[field]
	if !ok {
		return nil
	}
	vis := s.visible()
	ret := make([][]byte, len(vis))
	for i, it := range vis {
		ret[i] = it.Value
	}
	return ret
}

// Value returns the i-th live value of a field.
func (d *Doc) Value(field string, i int) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	s, ok := d.seqs[field]
	if !ok || i < 0 {
		return nil, ErrOutOfRange
	}
	vis := s.visible()
	if i >= len(vis) {
		return nil, ErrOutOfRange
	}
	return vis[i].Value, nil
}

// Items copies every item of a field, tombstones included, together
// with the frontier they were read at.
func (d *Doc) Items(field string) ([]Item, rdx.VV) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	s, ok := d.seqs[field]
	if !ok {
		return nil, d.vv.Clone()
	}
	return s.snapshot(), d.vv.Clone()
}

// Visible copies the live items of a field, in order.
func (d *Doc) Visible(field string) []Item {
	d.lock.RLock()
	defer d.lock.RUnlock()
	s, ok := d.seqs[field]
	if !ok {
		return nil
	}
	vis := s.visible()
	ret := make([]Item, len(vis))
	for i, it := range vis {
		ret[i] = *it
		ret[i].DeletedBy = nil
	}
	return ret
}

// Text concatenates the live items of a text field.
func (d *Doc) Text(field string) string {
	vals := d.Values(field)
	buf := make([]byte, 0, len(vals))
	for _, v := range vals {
		buf = append(buf, v...)
	}
	return string(buf)
}

// commit stamps, applies and stores a local op. Lock held.
func (d *Doc) commit(ctx context.Context, o *Op) (*Event, error) {
	if d.db == nil {
		return nil, ErrClosed
	}
	o.ID = rdx.IDFromSrcSeqOff(d.src, d.vv.Get(d.src)+OpSpan, 0)
	o.Time = rdx.Time{Rev: d.clock.Tick(), Src: d.src}
	if err := d.seq(o.Field).check(o); err != nil {
		return nil, err
	}
	batch := d.db.NewBatch()
	d.stage(batch, o)
	if err := d.db.Apply(batch, &WriteOptions); err != nil {
		return nil, errors.Wrap(err, "store op")
	}
	ev, _ := d.integrate(o)
	ev.Local = true
	OpsApplied.WithLabelValues(string(o.Kind), "local").Inc()
	d.log.DebugCtx(ctx, "op committed", "id", o.ID.String(), "kind", string(o.Kind), "field", o.Field)
	return ev, nil
}

// integrate applies a stamped op to the in-memory state. Lock held.
func (d *Doc) integrate(o *Op) (*Event, error) {
	s := d.seq(o.Field)
	if err := s.check(o); err != nil {
		return nil, err
	}
	n := s.apply(o)
	d.vv.PutID(o.ID)
	d.clock.See(o.Time.Rev)
	ev := &Event{Field: o.Field}
	if o.Kind == OpInsert {
		ev.Inserted = n
	} else {
		ev.Deleted = n
	}
	return ev, nil
}

func (d *Doc) mutate(ctx context.Context, build func() ([]*Op, error)) (last rdx.ID, err error) {
	d.lock.Lock()
	var evs []Event
	ops, err := build()
	for i := 0; err == nil && i < len(ops); i++ {
		o := ops[i]
		if i > 0 && o.Kind == OpInsert && ops[i-1].Kind == OpInsert {
			// chunks of one text continue each other
			prev := ops[i-1]
			o.Origin = prev.ID.ToOff(uint64(len(prev.Values) - 1))
		}
		var ev *Event
		if ev, err = d.commit(ctx, o); err == nil {
			last = o.ID
			evs = append(evs, *ev)
		}
	}
	d.lock.Unlock()
	d.notify(mergeEvents(evs))
	return
}

// InsertText inserts text at a rune position of a text field.
func (d *Doc) InsertText(ctx context.Context, field string, pos int, text string) (rdx.ID, error) {
	if text == "" {
		return rdx.ID0, nil
	}
	return d.mutate(ctx, func() ([]*Op, error) {
		vis := d.seq(field).visible()
		if pos < 0 || pos > len(vis) {
			return nil, ErrOutOfRange
		}
		origin := rdx.ID0
		if pos > 0 {
			origin = vis[pos-1].ID
		}
		var ops []*Op
		cur := &Op{Kind: OpInsert, Field: field, Origin: origin}
		for _, r := range text {
			if len(cur.Values) == MaxItemsPerOp {
				ops = append(ops, cur)
				cur = &Op{Kind: OpInsert, Field: field}
			}
			cur.Values = append(cur.Values, utf8.AppendRune(nil, r))
		}
		return append(ops, cur), nil
	})
}

// DeleteText removes n runes starting at a rune position, as one op.
func (d *Doc) DeleteText(ctx context.Context, field string, pos, n int) (rdx.ID, error) {
	if n == 0 {
		return rdx.ID0, nil
	}
	return d.mutate(ctx, func() ([]*Op, error) {
		vis := d.seq(field).visible()
		if pos < 0 || n < 0 || pos+n > len(vis) {
			return nil, ErrOutOfRange
		}
		o := &Op{Kind: OpDelete, Field: field}
		for _, it := range vis[pos : pos+n] {
			o.Targets = append(o.Targets, it.ID)
		}
		return []*Op{o}, nil
	})
}

// Push appends a value after every item of a list field known locally.
// It is exactly one op.
func (d *Doc) Push(ctx context.Context, field string, value []byte) (rdx.ID, error) {
	return d.mutate(ctx, func() ([]*Op, error) {
		return []*Op{{
			Kind:   OpInsert,
			Field:  field,
			Origin: d.seq(field).last(),
			Values: [][]byte{value},
		}}, nil
	})
}

// Drain applies op packets received from other replicas. Ops already
// seen are skipped. The ops applied before a failing one stay applied;
// each op is stored before it shows in memory.
func (d *Doc) Drain(ctx context.Context, recs protocol.Records) (err error) {
	d.lock.Lock()
	if d.db == nil {
		d.lock.Unlock()
		return ErrClosed
	}
	var evs []Event
	for _, packet := range recs {
		var o *Op
		if o, err = ParseOp(packet); err != nil {
			break
		}
		switch d.vv.Next(o.ID) {
		case rdx.VvSeen:
			continue
		case rdx.VvGap:
			err = errors.Wrapf(ErrOutOfOrder, "%s after %s", o.ID, d.vv.GetID(o.ID.Src()))
		}
		if err != nil {
			break
		}
		if err = d.seq(o.Field).check(o); err != nil {
			break
		}
		batch := d.db.NewBatch()
		d.stage(batch, o)
		if err = d.db.Apply(batch, &WriteOptions); err != nil {
			err = errors.Wrap(err, "store op")
			break
		}
		ev, _ := d.integrate(o)
		evs = append(evs, *ev)
		OpsApplied.WithLabelValues(string(o.Kind), "remote").Inc()
	}
	if err != nil {
		d.log.WarnCtx(ctx, "drain stopped", "err", err, "applied", len(evs))
	}
	d.lock.Unlock()
	d.notify(mergeEvents(evs))
	return
}
