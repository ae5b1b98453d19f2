package doc

import (
	"fmt"

	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/pkg/errors"
)

const (
	OpInsert = byte('I')
	OpDelete = byte('D')
)

// OpSpan is how much one op advances its replica's entry of the
// version vector. An insert of any number of items and a delete of any
// number of items are both a single op.
const OpSpan = 1

// Op is a parsed op packet.
//
//	I{ i:id t:time F:field r:origin S:value S:value ... }
//	D{ i:id t:time F:field r:target r:target ... }
type Op struct {
	Kind    byte
	ID      rdx.ID
	Time    rdx.Time
	Field   string
	Origin  rdx.ID
	Values  [][]byte
	Targets []rdx.ID
}

var ErrBadPacket = errors.New("doc: bad op packet")

// Packet serializes the op.
func (o *Op) Packet() []byte {
	bm, ret := protocol.OpenHeader(nil, o.Kind)
	ret = append(ret, protocol.TinyRecord('I', o.ID.ZipBytes())...)
	ret = append(ret, protocol.TinyRecord('T', o.Time.ZipBytes())...)
	ret = protocol.Append(ret, 'F', []byte(o.Field))
	switch o.Kind {
	case OpInsert:
		ret = append(ret, protocol.TinyRecord('R', o.Origin.ZipBytes())...)
		for _, v := range o.Values {
			ret = protocol.Append(ret, 'S', v)
		}
	case OpDelete:
		for _, t := range o.Targets {
			ret = append(ret, protocol.TinyRecord('R', t.ZipBytes())...)
		}
	}
	protocol.CloseHeader(ret, bm)
	return ret
}

func takeID(lit byte, data []byte) (id rdx.ID, rest []byte, err error) {
	var body []byte
	body, rest, err = protocol.TakeWary(lit, data)
	if err != nil {
		return rdx.BadId, nil, err
	}
	id = rdx.IDFromZipBytes(body)
	if id == rdx.BadId {
		return id, nil, fmt.Errorf("bad %c id", lit)
	}
	return
}

// ParseOp parses an op packet; errors wrap ErrBadPacket.
func ParseOp(packet []byte) (o *Op, err error) {
	lit, body, rest, err := protocol.TakeAnyWary(packet)
	if err != nil {
		return nil, errors.Wrap(ErrBadPacket, err.Error())
	}
	if len(rest) != 0 {
		return nil, errors.Wrap(ErrBadPacket, "trailing bytes")
	}
	if lit != OpInsert && lit != OpDelete {
		return nil, errors.Wrapf(ErrBadPacket, "unknown op type %c", lit)
	}
	o = &Op{Kind: lit}
	if o.ID, body, err = takeID('I', body); err != nil {
		return nil, errors.Wrap(ErrBadPacket, err.Error())
	}
	var tb, fb []byte
	if tb, body, err = protocol.TakeWary('T', body); err != nil {
		return nil, errors.Wrap(ErrBadPacket, "time: "+err.Error())
	}
	if !rdx.ValidZipPairLen(len(tb)) {
		return nil, errors.Wrap(ErrBadPacket, "time length")
	}
	o.Time = rdx.TimeFromZipBytes(tb)
	if fb, body, err = protocol.TakeWary('F', body); err != nil {
		return nil, errors.Wrap(ErrBadPacket, "field: "+err.Error())
	}
	o.Field = string(fb)
	switch lit {
	case OpInsert:
		if o.Origin, body, err = takeID('R', body); err != nil {
			return nil, errors.Wrap(ErrBadPacket, "origin: "+err.Error())
		}
		for len(body) > 0 {
			var val []byte
			if val, body, err = protocol.TakeWary('S', body); err != nil {
				return nil, errors.Wrap(ErrBadPacket, "value: "+err.Error())
			}
			o.Values = append(o.Values, val)
		}
	case OpDelete:
		for len(body) > 0 {
			var t rdx.ID
			if t, body, err = takeID('R', body); err != nil {
				return nil, errors.Wrap(ErrBadPacket, "target: "+err.Error())
			}
			o.Targets = append(o.Targets, t)
		}
	}
	if err = o.wellFormed(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Op) wellFormed() error {
	switch {
	case o.ID.Src() == 0 || o.ID.Seq() == 0 || o.ID.Off() != 0:
		return errors.Wrapf(ErrBadPacket, "bad op id %s", o.ID)
	case o.Time.Src != o.ID.Src() || o.Time.Rev <= 0:
		return errors.Wrapf(ErrBadPacket, "bad op time %d@%x", o.Time.Rev, o.Time.Src)
	case o.Field == "":
		return errors.Wrap(ErrBadPacket, "no field")
	case o.Kind == OpInsert && (len(o.Values) == 0 || len(o.Values) > MaxItemsPerOp):
		return errors.Wrapf(ErrBadPacket, "%d values", len(o.Values))
	case o.Kind == OpDelete && len(o.Targets) == 0:
		return errors.Wrap(ErrBadPacket, "no targets")
	}
	return nil
}
