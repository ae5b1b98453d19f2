package doc

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/pkg/errors"
)

// Store layout:
//
//	O rev:8 src:8 -> op packet   (key order is Lamport order)
//	V            -> encoded version vector
//	Y            -> replica record Y{ I:src N:name }
var (
	opPrefix   = []byte{'O'}
	opEnd      = []byte{'P'}
	vvKey      = []byte{'V'}
	replicaKey = []byte{'Y'}
)

var WriteOptions = pebble.WriteOptions{Sync: false}

func opKey(t rdx.Time) []byte {
	key := make([]byte, 17)
	key[0] = 'O'
	binary.BigEndian.PutUint64(key[1:9], uint64(t.Rev))
	binary.BigEndian.PutUint64(key[9:], t.Src)
	return key
}

// stage puts an op and the frontier including it into the batch.
func (d *Doc) stage(batch *pebble.Batch, o *Op) {
	_ = batch.Set(opKey(o.Time), o.Packet(), nil)
	vv := d.vv.Clone()
	vv.PutID(o.ID)
	_ = batch.Set(vvKey, snapshot.Encode(vv), nil)
}

func (d *Doc) loadReplica() error {
	val, closer, err := d.db.Get(replicaKey)
	if errors.Is(err, pebble.ErrNotFound) {
		rec := protocol.Record('Y',
			protocol.Record('I', rdx.ZipUint64(d.src)),
			protocol.Record('N', []byte(d.name)),
		)
		return errors.Wrap(d.db.Set(replicaKey, rec, pebble.Sync), "store replica record")
	} else if err != nil {
		return errors.Wrap(err, "read replica record")
	}
	defer closer.Close()
	body, _, err := protocol.TakeWary('Y', val)
	if err != nil {
		return errors.Wrap(err, "replica record")
	}
	srcb, body, err := protocol.TakeWary('I', body)
	if err != nil {
		return errors.Wrap(err, "replica record")
	}
	if src := rdx.UnzipUint64(srcb); src != d.src {
		return errors.Wrapf(ErrSourceMismatch, "%x is not %x", src, d.src)
	}
	if name, _, err := protocol.TakeWary('N', body); err == nil && len(name) > 0 {
		d.name = string(name)
	}
	return nil
}

// replay rebuilds the in-memory state from the op log.
func (d *Doc) replay() error {
	it, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: opPrefix,
		UpperBound: opEnd,
	})
	if err != nil {
		return errors.Wrap(err, "op log iterator")
	}
	defer it.Close()
	n := 0
	for it.SeekGE(opPrefix); it.Valid(); it.Next() {
		o, err := ParseOp(it.Value())
		if err != nil {
			return errors.Wrapf(err, "op log entry %x", it.Key())
		}
		if d.vv.Next(o.ID) != rdx.VvNext {
			return errors.Wrapf(ErrOutOfOrder, "op log entry %s", o.ID)
		}
		if _, err = d.integrate(o); err != nil {
			return errors.Wrapf(err, "op log entry %s", o.ID)
		}
		n++
	}
	if err = it.Error(); err != nil {
		return errors.Wrap(err, "op log")
	}

	val, closer, err := d.db.Get(vvKey)
	if err == nil {
		stored, derr := snapshot.Decode(val)
		_ = closer.Close()
		if derr != nil || !stored.Equal(d.vv) {
			d.log.Warn("stored version vector does not match the op log",
				"stored", snapshot.String(stored), "replayed", snapshot.String(d.vv))
		}
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return errors.Wrap(err, "read version vector")
	}
	d.log.Debug("op log replayed", "ops", n)
	return nil
}
