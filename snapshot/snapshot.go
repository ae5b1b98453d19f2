// Package snapshot encodes causal frontiers of a document: for every
// replica, how many of its ops are included. A frontier is an rdx.VV.
package snapshot

import (
	"fmt"

	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/pkg/errors"
)

var ErrCorruptSnapshot = errors.New("snapshot: corrupt encoded frontier")

// Empty is the frontier of a document nobody has edited yet.
func Empty() rdx.VV {
	return make(rdx.VV)
}

// Encode serializes a frontier as a series of V records, one per
// replica, sorted by replica id. Same frontier => same bytes.
func Encode(vv rdx.VV) (enc []byte) {
	enc = []byte{}
	for _, src := range vv.Sources() {
		cnt := vv[src]
		if cnt == 0 {
			continue
		}
		enc = protocol.Append(enc, 'V', rdx.ZipUint64Pair(src, cnt))
	}
	return
}

// Decode parses an Encode'd frontier. An empty input is the empty frontier.
func Decode(enc []byte) (rdx.VV, error) {
	vv := make(rdx.VV)
	rest := enc
	for len(rest) > 0 {
		body, tail, err := protocol.TakeWary('V', rest)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptSnapshot, "record at %d: %v", len(enc)-len(rest), err)
		}
		if !rdx.ValidZipPairLen(len(body)) {
			return nil, errors.Wrapf(ErrCorruptSnapshot, "bad pair length %d", len(body))
		}
		src, cnt := rdx.UnzipUint64Pair(body)
		if cnt == 0 {
			return nil, errors.Wrapf(ErrCorruptSnapshot, "zero count for replica %x", src)
		}
		if _, dup := vv[src]; dup {
			return nil, errors.Wrapf(ErrCorruptSnapshot, "replica %x listed twice", src)
		}
		vv[src] = cnt
		rest = tail
	}
	return vv, nil
}

// MustDecode is Decode for trusted input.
func MustDecode(enc []byte) rdx.VV {
	vv, err := Decode(enc)
	if err != nil {
		panic(err)
	}
	return vv
}

// Equal is true iff both frontiers hold exactly the same (replica, count)
// pairs. A nil frontier equals the empty one.
func Equal(a, b rdx.VV) bool {
	return a.Equal(b)
}

func String(vv rdx.VV) string {
	if len(vv) == 0 {
		return "{}"
	}
	return vv.String()
}

// Parse reads the String form back.
func Parse(txt string) (rdx.VV, error) {
	if txt == "{}" || txt == "" {
		return Empty(), nil
	}
	vv, ok := rdx.VVFromString(txt)
	if !ok {
		return nil, fmt.Errorf("snapshot: cannot parse %q", txt)
	}
	return vv, nil
}
