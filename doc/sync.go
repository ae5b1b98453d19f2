package doc

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/pkg/errors"
)

// SyncBatch is the number of op packets one Feed call returns at most.
const SyncBatch = 256

var ErrBadHandshake = errors.New("doc: bad handshake packet")

// FeedSince returns, in Lamport order, the op packets of every op the
// frontier does not cover.
func (d *Doc) FeedSince(vv rdx.VV) (recs protocol.Records, err error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	it, err := d.db.NewIter(&pebble.IterOptions{LowerBound: opPrefix, UpperBound: opEnd})
	if err != nil {
		return nil, errors.Wrap(err, "op log iterator")
	}
	defer it.Close()
	for it.SeekGE(opPrefix); it.Valid(); it.Next() {
		if !coveredKey(vv, it.Value()) {
			recs = append(recs, append([]byte(nil), it.Value()...))
		}
	}
	return recs, it.Error()
}

func coveredKey(vv rdx.VV, packet []byte) bool {
	_, body, _ := protocol.TakeAny(packet)
	idb, _ := protocol.Take('I', body)
	return vv.Covers(rdx.IDFromZipBytes(idb))
}

type SyncState int

const (
	SendHandshake SyncState = iota
	SendDiff
	SendEOF
	SendNone
)

var syncStateNames = []string{"SendHandshake", "SendDiff", "SendEOF", "SendNone"}

func (s SyncState) String() string {
	if s >= 0 && int(s) < len(syncStateNames) {
		return syncStateNames[s]
	}
	return "SyncState(" + strconv.Itoa(int(s)) + ")"
}

// Syncer runs one direction-pair of a state exchange with a peer:
//
//	H{ V:frontier }   handshake, the frontier of the sender
//	I{...} D{...}     ops the peer lacks, in Lamport order
//	B{ reason }       bye
//
// Feed produces what this side sends, Drain consumes what the peer sent.
type Syncer struct {
	Host *Doc
	Name string

	log        utils.Logger
	snap       *pebble.Snapshot
	it         *pebble.Iterator
	feedState  SyncState
	drainState SyncState
	peervv     rdx.VV
	hostvv     rdx.VV
	reason     error

	lock sync.Mutex
	cond sync.Cond
}

func NewSyncer(host *Doc, name string) *Syncer {
	return &Syncer{Host: host, Name: name, log: host.Logger()}
}

func (s *Syncer) Close() error {
	s.SetFeedState(SendNone)
	s.SetDrainState(SendNone)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.it != nil {
		if err := s.it.Close(); err != nil {
			s.log.Error("sync: failed closing iterator", "name", s.Name, "err", err)
		}
		s.it = nil
	}
	if s.snap != nil {
		if err := s.snap.Close(); err != nil {
			s.log.Error("sync: failed closing snapshot", "name", s.Name, "err", err)
		}
		s.snap = nil
	}
	s.log.Debug("sync: closed", "name", s.Name, "reason", s.reason)
	return nil
}

func (s *Syncer) Feed(ctx context.Context) (recs protocol.Records, err error) {
	switch s.feedState {
	case SendHandshake:
		recs, err = s.FeedHandshake()
		if err != nil {
			s.reason = err
			s.SetFeedState(SendEOF)
			return nil, nil
		}
		s.SetFeedState(SendDiff)

	case SendDiff:
		if s.WaitDrainState(SendDiff) > SendDiff {
			s.SetFeedState(SendEOF)
			return nil, nil
		}
		recs, err = s.FeedDiff()
		if err == io.EOF {
			s.SetFeedState(SendEOF)
			err = nil
		} else if err != nil {
			s.reason = err
			s.SetFeedState(SendEOF)
			err = nil
		}

	case SendEOF:
		reason := []byte("closing")
		if s.reason != nil {
			reason = []byte(s.reason.Error())
		}
		recs = protocol.Records{protocol.Record('B', reason)}
		s.SetFeedState(SendNone)

	case SendNone:
		err = io.EOF
	}
	return
}

func (s *Syncer) FeedHandshake() (protocol.Records, error) {
	d := s.Host
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	s.snap = d.db.NewSnapshot()
	it, err := s.snap.NewIter(&pebble.IterOptions{LowerBound: opPrefix, UpperBound: opEnd})
	if err != nil {
		return nil, errors.Wrap(err, "op log iterator")
	}
	s.it = it
	s.it.SeekGE(opPrefix)
	s.hostvv = d.vv.Clone()
	hs := protocol.Record('H', protocol.Record('V', snapshot.Encode(d.vv)))
	return protocol.Records{hs}, nil
}

func (s *Syncer) FeedDiff() (diff protocol.Records, err error) {
	if s.peervv.Seen(s.hostvv) {
		s.log.Debug("sync: peer is up to date", "name", s.Name, "vv", s.peervv.String())
		return nil, io.EOF
	}
	for ; s.it.Valid() && len(diff) < SyncBatch; s.it.Next() {
		if !coveredKey(s.peervv, s.it.Value()) {
			diff = append(diff, append([]byte(nil), s.it.Value()...))
		}
	}
	if err = s.it.Error(); err != nil {
		return
	}
	if !s.it.Valid() {
		err = io.EOF
	}
	return
}

func (s *Syncer) SetFeedState(state SyncState) {
	s.log.Debug("sync: feed state", "name", s.Name, "state", state.String())
	s.lock.Lock()
	s.feedState = state
	s.lock.Unlock()
}

func (s *Syncer) SetDrainState(state SyncState) {
	s.log.Debug("sync: drain state", "name", s.Name, "state", state.String())
	s.lock.Lock()
	s.drainState = state
	if s.cond.L == nil {
		s.cond.L = &s.lock
	}
	s.cond.Broadcast()
	s.lock.Unlock()
}

func (s *Syncer) WaitDrainState(state SyncState) (ds SyncState) {
	s.lock.Lock()
	if s.cond.L == nil {
		s.cond.L = &s.lock
	}
	for s.drainState < state {
		s.cond.Wait()
	}
	ds = s.drainState
	s.lock.Unlock()
	return
}

func (s *Syncer) Drain(ctx context.Context, recs protocol.Records) (err error) {
	for len(recs) > 0 {
		switch s.drainState {
		case SendHandshake:
			if err = s.DrainHandshake(recs[0]); err != nil {
				s.reason = err
				s.SetDrainState(SendEOF)
				return
			}
			recs = recs[1:]
			s.SetDrainState(SendDiff)

		case SendDiff:
			n := 0
			for n < len(recs) && protocol.Lit(recs[n]) != 'B' {
				n++
			}
			if n > 0 {
				if err = s.Host.Drain(ctx, recs[:n]); err != nil {
					s.reason = err
					s.SetDrainState(SendEOF)
					return
				}
			}
			recs = recs[n:]
			if len(recs) > 0 {
				s.SetDrainState(SendNone)
				return nil
			}

		default:
			return ErrClosed
		}
	}
	return
}

func (s *Syncer) DrainHandshake(rec []byte) error {
	body, rest, err := protocol.TakeWary('H', rec)
	if err != nil || len(rest) != 0 {
		return ErrBadHandshake
	}
	vb, _, err := protocol.TakeWary('V', body)
	if err != nil {
		return ErrBadHandshake
	}
	if s.peervv, err = snapshot.Decode(vb); err != nil {
		return errors.Wrap(ErrBadHandshake, err.Error())
	}
	return nil
}

// SyncSimplex sends whatever b lacks from a to b.
func SyncSimplex(ctx context.Context, a, b *Doc) error {
	synca := NewSyncer(a, a.Name())
	syncb := NewSyncer(b, b.Name())
	defer syncb.Close()
	defer synca.Close()
	// b tells a its frontier
	if err := protocol.Relay(ctx, syncb, synca); err != nil {
		return err
	}
	err := protocol.Pump(ctx, synca, syncb)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err == nil && synca.reason != nil {
		err = synca.reason
	}
	return err
}

// SyncDuplex brings both replicas to the same state.
func SyncDuplex(ctx context.Context, a, b *Doc) error {
	if err := SyncSimplex(ctx, a, b); err != nil {
		return err
	}
	return SyncSimplex(ctx, b, a)
}
