package doc

import (
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/pkg/errors"
)

// MaxItemsPerOp is the number of items an insert op can carry: item k
// of op X gets the id X with offset k.
const MaxItemsPerOp = int(rdx.MaxOff) + 1

var ErrCausalityBroken = errors.New("doc: op refers to an unknown item")

// Item is one element of a replicated sequence: a character of a text
// or an entry of a list. Deleted items stay around as tombstones.
type Item struct {
	ID        rdx.ID
	Origin    rdx.ID
	Time      rdx.Time
	Value     []byte
	DeletedBy []rdx.ID
}

func (it *Item) Deleted() bool {
	return len(it.DeletedBy) > 0
}

// VisibleAt tells whether the item exists in the document state
// described by the frontier: inserted, and not deleted, as of vv.
func (it *Item) VisibleAt(vv rdx.VV) bool {
	if !vv.Covers(it.ID) {
		return false
	}
	for _, del := range it.DeletedBy {
		if vv.Covers(del) {
			return false
		}
	}
	return true
}

// sequence is an RGA: every item is placed right after its origin,
// concurrent inserts after the same origin go in descending Lamport
// order. Lamport order is causal, so a run of items skipped this way
// includes everything inserted into it later.
type sequence struct {
	items []*Item
	byID  map[rdx.ID]*Item
}

func newSequence() *sequence {
	return &sequence{byID: make(map[rdx.ID]*Item)}
}

func (s *sequence) indexOf(id rdx.ID) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// check validates an op against the sequence without changing it.
func (s *sequence) check(o *Op) error {
	switch o.Kind {
	case OpInsert:
		if o.Origin == rdx.ID0 {
			return nil
		}
		origin, ok := s.byID[o.Origin]
		if !ok {
			return errors.Wrapf(ErrCausalityBroken, "origin %s", o.Origin)
		}
		if origin.Time.Compare(o.Time) >= 0 {
			return errors.Wrapf(ErrCausalityBroken, "origin %s is not older than %s", o.Origin, o.ID)
		}
	case OpDelete:
		for _, t := range o.Targets {
			if _, ok := s.byID[t]; !ok {
				return errors.Wrapf(ErrCausalityBroken, "delete target %s", t)
			}
		}
	}
	return nil
}

// apply integrates a checked op, returns the number of items
// inserted or newly deleted.
func (s *sequence) apply(o *Op) (n int) {
	switch o.Kind {
	case OpInsert:
		pos := 0
		if o.Origin != rdx.ID0 {
			pos = s.indexOf(o.Origin) + 1
		}
		for pos < len(s.items) && s.items[pos].Time.Compare(o.Time) > 0 {
			pos++
		}
		run := make([]*Item, len(o.Values))
		origin := o.Origin
		for k, val := range o.Values {
			it := &Item{
				ID:     o.ID.ToOff(uint64(k)),
				Origin: origin,
				Time:   o.Time,
				Value:  val,
			}
			run[k] = it
			s.byID[it.ID] = it
			origin = it.ID
		}
		s.items = append(s.items[:pos], append(run, s.items[pos:]...)...)
		n = len(run)
	case OpDelete:
		for _, t := range o.Targets {
			it := s.byID[t]
			if !it.Deleted() {
				n++
			}
			it.DeletedBy = append(it.DeletedBy, o.ID)
		}
	}
	return
}

// visible returns the items not deleted, in order.
func (s *sequence) visible() []*Item {
	ret := make([]*Item, 0, len(s.items))
	for _, it := range s.items {
		if !it.Deleted() {
			ret = append(ret, it)
		}
	}
	return ret
}

func (s *sequence) last() rdx.ID {
	if len(s.items) == 0 {
		return rdx.ID0
	}
	return s.items[len(s.items)-1].ID
}

func (s *sequence) snapshot() []Item {
	ret := make([]Item, len(s.items))
	for i, it := range s.items {
		ret[i] = *it
		ret[i].DeletedBy = append([]rdx.ID(nil), it.DeletedBy...)
	}
	return ret
}
