package view

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/nandit123/crdt-text-editor-2/versions"
	"github.com/pkg/errors"
)

// DefaultSettleDelay is how long the projector waits before reading the
// state of a pipeline that gives no completion signal.
const DefaultSettleDelay = 500 * time.Millisecond

var ErrNoTarget = errors.New("view: no target snapshot")

// Pipeline is the rendering side a Projector drives. Dispatch may
// return nil when it can not tell when the state change is applied.
type Pipeline interface {
	Dispatch(meta Meta) <-chan struct{}
	State() SyncState
}

type ProjectorOptions struct {
	SettleDelay time.Duration
	Logger      utils.Logger
}

// Projector switches a pipeline between the live document and
// historical snapshots, and keeps the live tracking indicator: on while
// the live state is followed with changes marked since a baseline.
type Projector struct {
	pipe  Pipeline
	delay time.Duration
	log   utils.Logger

	lock    sync.Mutex
	live    bool
	gen     uint64
	settled chan struct{}
}

func NewProjector(pipe Pipeline, opts ProjectorOptions) *Projector {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	p := &Projector{
		pipe:    pipe,
		delay:   opts.SettleDelay,
		log:     opts.Logger,
		settled: make(chan struct{}),
	}
	p.recompute(0)
	close(p.settled)
	return p
}

// Project renders the target snapshot, marking the changes made since
// baseline; a nil baseline is the empty frontier. It supersedes any
// earlier projection.
func (p *Projector) Project(target, baseline []byte) error {
	if target == nil {
		return ErrNoTarget
	}
	t, err := snapshot.Decode(target)
	if err != nil {
		return errors.Wrap(err, "target")
	}
	b, err := decodeBaseline(baseline)
	if err != nil {
		return err
	}
	p.log.Debug("projector: project", "target", snapshot.String(t), "baseline", snapshot.String(b))
	p.settle(p.pipe.Dispatch(Meta{Snapshot: &t, PrevSnapshot: &b}))
	return nil
}

// Follow renders the live document with changes since baseline marked.
func (p *Projector) Follow(baseline []byte) error {
	b, err := decodeBaseline(baseline)
	if err != nil {
		return err
	}
	p.log.Debug("projector: follow", "baseline", snapshot.String(b))
	p.settle(p.pipe.Dispatch(Meta{PrevSnapshot: &b}))
	return nil
}

func decodeBaseline(baseline []byte) (rdx.VV, error) {
	if baseline == nil {
		return snapshot.Empty(), nil
	}
	b, err := snapshot.Decode(baseline)
	if err != nil {
		return nil, errors.Wrap(err, "baseline")
	}
	return b, nil
}

// Unproject goes back to the plain live view.
func (p *Projector) Unproject() {
	p.log.Debug("projector: unproject")
	var done <-chan struct{}
	if binding := p.pipe.State().Binding; binding != nil {
		done = binding.UnrenderSnapshot()
	} else {
		done = p.pipe.Dispatch(Meta{})
	}
	p.settle(done)
}

// SetLiveTracking turns live tracking on, with the last version of the
// log as the baseline, or off.
func (p *Projector) SetLiveTracking(on bool, log *versions.Log) error {
	if !on {
		p.Unproject()
		return nil
	}
	baseline := []byte{}
	last, ok, err := log.Last()
	if err != nil {
		return err
	}
	if ok {
		baseline = last.Snapshot
	}
	return p.Follow(baseline)
}

func (p *Projector) LiveTracking() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.live
}

// Settled is closed once the indicator reflects the latest change.
func (p *Projector) Settled() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.settled
}

// settle recomputes the indicator once the pipeline applied a change.
// Without a completion signal it reads the state after the settle delay;
// a pipeline slower than that is read stale until the next change.
// Only the latest change updates the indicator.
func (p *Projector) settle(done <-chan struct{}) {
	settled := make(chan struct{})
	p.lock.Lock()
	p.gen++
	gen := p.gen
	p.settled = settled
	p.lock.Unlock()
	go func() {
		if done != nil {
			<-done
		} else {
			time.Sleep(p.delay)
		}
		p.recompute(gen)
		close(settled)
	}()
}

func (p *Projector) recompute(gen uint64) {
	state := p.pipe.State()
	live := state.Snapshot == nil && state.PrevSnapshot != nil
	p.lock.Lock()
	if gen == p.gen {
		p.live = live
	}
	p.lock.Unlock()
}
