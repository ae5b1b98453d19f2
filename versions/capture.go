package versions

import (
	"context"
	"time"

	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var CaptureResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verdoc",
	Subsystem: "versions",
	Name:      "capture_results",
}, []string{"result"})

type captureConfig struct {
	now func() time.Time
	log utils.Logger
}

type CaptureOption func(*captureConfig)

// WithClock sets the source of CapturedAt.
func WithClock(now func() time.Time) CaptureOption {
	return func(c *captureConfig) { c.now = now }
}

func WithLogger(log utils.Logger) CaptureOption {
	return func(c *captureConfig) { c.log = log }
}

// Capture runs Log.Capture on the history of d. It reports whether an
// entry was appended.
func Capture(ctx context.Context, d *doc.Doc, opts ...CaptureOption) (Version, bool, error) {
	return NewLog(d).Capture(ctx, opts...)
}

// Capture records the current frontier of the document as a new version
// unless nothing happened since the last one.
//
// Appending the previous entry was itself an op of its author, so every
// frontier read after it counts that op: the previous frontier is
// advanced by doc.OpSpan for the author before comparing. Without that,
// every capture would see a change. A remote append may land between
// reading the last entry and appending; both entries then survive.
func (l *Log) Capture(ctx context.Context, opts ...CaptureOption) (Version, bool, error) {
	conf := captureConfig{now: time.Now, log: l.doc.Logger()}
	for _, opt := range opts {
		opt(&conf)
	}

	prev := snapshot.Empty()
	last, ok, err := l.Last()
	if err != nil {
		return Version{}, false, err
	}
	if ok {
		if prev, err = snapshot.Decode(last.Snapshot); err != nil {
			return Version{}, false, errors.Wrap(err, "previous version")
		}
		prev.Set(last.AuthorID, prev.Get(last.AuthorID)+doc.OpSpan)
	}

	cur := l.doc.VersionVector()
	if snapshot.Equal(prev, cur) {
		CaptureResults.WithLabelValues("unchanged").Inc()
		conf.log.DebugCtx(ctx, "capture: no change", "frontier", snapshot.String(cur))
		return Version{}, false, nil
	}

	v := Version{
		CapturedAt: time.UnixMilli(conf.now().UnixMilli()),
		Snapshot:   snapshot.Encode(cur),
		AuthorID:   l.doc.Source(),
	}
	if _, err = l.Append(ctx, v); err != nil {
		return Version{}, false, err
	}
	CaptureResults.WithLabelValues("appended").Inc()
	conf.log.InfoCtx(ctx, "capture: version appended",
		"index", l.Len()-1, "frontier", snapshot.String(cur))
	return v, true, nil
}
