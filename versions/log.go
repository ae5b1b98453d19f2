package versions

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/pkg/errors"
)

// Field is the document field the history lives in.
const Field = "versions"

const cacheSize = 1024

// Log is the version history of a document. Appending is a single op
// of the local replica; concurrent appends by different replicas all
// survive and converge to the same order everywhere.
type Log struct {
	doc   *doc.Doc
	field string
	// entries are immutable, so decoded ones are cached by item id
	cache *lru.Cache[rdx.ID, Version]
}

func NewLog(d *doc.Doc) *Log {
	return NewLogField(d, Field)
}

func NewLogField(d *doc.Doc, field string) *Log {
	cache, err := lru.New[rdx.ID, Version](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Log{doc: d, field: field, cache: cache}
}

func (l *Log) Doc() *doc.Doc {
	return l.doc
}

// Append adds the entry after every entry this replica sees. It is
// visible to local reads once Append returns.
func (l *Log) Append(ctx context.Context, v Version) (rdx.ID, error) {
	id, err := l.doc.Push(ctx, l.field, v.Bytes())
	if err != nil {
		return id, errors.Wrap(err, "append version")
	}
	return id, nil
}

func (l *Log) Len() int {
	return l.doc.Len(l.field)
}

func (l *Log) decode(it doc.Item) (Version, error) {
	if v, ok := l.cache.Get(it.ID); ok {
		return v, nil
	}
	v, err := ParseVersion(it.Value)
	if err != nil {
		return v, errors.Wrapf(err, "version %s", it.ID)
	}
	l.cache.Add(it.ID, v)
	return v, nil
}

// At returns the i-th entry of the converged order.
func (l *Log) At(i int) (Version, error) {
	items := l.doc.Visible(l.field)
	if i < 0 || i >= len(items) {
		return Version{}, doc.ErrOutOfRange
	}
	return l.decode(items[i])
}

// All returns every entry, in order.
func (l *Log) All() ([]Version, error) {
	items := l.doc.Visible(l.field)
	ret := make([]Version, 0, len(items))
	for _, it := range items {
		v, err := l.decode(it)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// Last returns the last entry, false if the log is empty.
func (l *Log) Last() (Version, bool, error) {
	items := l.doc.Visible(l.field)
	if len(items) == 0 {
		return Version{}, false, nil
	}
	v, err := l.decode(items[len(items)-1])
	return v, err == nil, err
}

// OnAppend calls fn with the new length whenever appends, local or
// remote, become visible. Remote appends delivered together make one
// call. The returned func cancels.
func (l *Log) OnAppend(fn func(n int)) (cancel func()) {
	return l.doc.Observe(l.field, func(ev doc.Event) {
		if ev.Inserted > 0 {
			fn(l.Len())
		}
	})
}
