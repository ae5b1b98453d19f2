// Package versions keeps a manual version history inside the replicated
// document: every version is an entry of an append-only list field, so
// the history syncs along with the content.
package versions

import (
	"fmt"
	"time"

	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	"github.com/pkg/errors"
)

var ErrBadVersion = errors.New("versions: malformed version entry")

// Version is one recorded point of the history. Entries are immutable.
// CapturedAt is wall-clock time of the capturing replica; the history is
// ordered by log position, not by it.
type Version struct {
	CapturedAt time.Time
	Snapshot   []byte
	AuthorID   uint64
}

// Bytes encodes the entry as T{unix ms} V{snapshot} R{author}.
func (v Version) Bytes() []byte {
	return protocol.Concat(
		protocol.Record('T', rdx.ZipInt64(v.CapturedAt.UnixMilli())),
		protocol.Record('V', v.Snapshot),
		protocol.Record('R', rdx.ZipUint64(v.AuthorID)),
	)
}

func ParseVersion(data []byte) (v Version, err error) {
	tb, rest, err := protocol.TakeWary('T', data)
	if err != nil {
		return v, errors.Wrap(ErrBadVersion, "time: "+err.Error())
	}
	if len(tb) > 8 {
		return v, errors.Wrap(ErrBadVersion, "time length")
	}
	v.CapturedAt = time.UnixMilli(rdx.UnzipInt64(tb))
	if v.Snapshot, rest, err = protocol.TakeWary('V', rest); err != nil {
		return v, errors.Wrap(ErrBadVersion, "snapshot: "+err.Error())
	}
	if v.Snapshot == nil {
		v.Snapshot = []byte{}
	}
	var rb []byte
	if rb, rest, err = protocol.TakeWary('R', rest); err != nil {
		return v, errors.Wrap(ErrBadVersion, "author: "+err.Error())
	}
	if len(rb) > 8 || len(rest) != 0 {
		return v, errors.Wrap(ErrBadVersion, "trailing bytes")
	}
	v.AuthorID = rdx.UnzipUint64(rb)
	return v, nil
}

// Frontier decodes the snapshot of the entry.
func (v Version) Frontier() (rdx.VV, error) {
	return snapshot.Decode(v.Snapshot)
}

func (v Version) String() string {
	vv, err := v.Frontier()
	snap := "corrupt"
	if err == nil {
		snap = snapshot.String(vv)
	}
	return fmt.Sprintf("%s by %x at %s", snap, v.AuthorID, v.CapturedAt.Format(time.DateTime))
}
