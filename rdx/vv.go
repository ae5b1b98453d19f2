package rdx

import (
	"slices"
)

// VV is a version vector: for each known replica, the number of its
// ops seen. Replica src has produced ops src-1 .. src-vv[src].
type VV map[uint64]uint64

func (vv VV) Get(src uint64) (seq uint64) {
	return vv[src]
}

// Set the progress for the specified source
func (vv VV) Set(src, seq uint64) {
	if seq == 0 {
		delete(vv, src)
		return
	}
	vv[src] = seq
}

// Put the src-seq pair to the VV, returns whether it was
// unseen (i.e. made any difference)
func (vv VV) Put(src, seq uint64) bool {
	pre, ok := vv[src]
	if seq == 0 || (ok && pre >= seq) {
		return false
	}
	vv[src] = seq
	return true
}

// Adds the id to the VV, returns whether it was unseen
func (vv VV) PutID(id ID) bool {
	return vv.Put(id.Src(), id.Seq())
}

// Covers tells whether the op (or op item) id is included.
func (vv VV) Covers(id ID) bool {
	return id.Seq() != 0 && vv[id.Src()] >= id.Seq()
}

// Seen tells whether every op included in bb is included in vv.
func (vv VV) Seen(bb VV) bool {
	for src, seq := range bb {
		if seq > vv[src] {
			return false
		}
	}
	return true
}

// Next classifies an op id against the vector.
func (vv VV) Next(id ID) int {
	have := vv[id.Src()]
	if have >= id.Seq() {
		return VvSeen
	}
	if have+1 < id.Seq() {
		return VvGap
	}
	return VvNext
}

const (
	VvSeen = -1
	VvNext = 0
	VvGap  = 1
)

func (vv VV) Clone() VV {
	ret := make(VV, len(vv))
	for src, seq := range vv {
		ret[src] = seq
	}
	return ret
}

func (vv VV) Equal(bb VV) bool {
	if len(vv) != len(bb) {
		return false
	}
	for src, seq := range vv {
		bseq, ok := bb[src]
		if !ok || bseq != seq {
			return false
		}
	}
	return true
}

// Sources lists the replica ids, sorted.
func (vv VV) Sources() []uint64 {
	srcs := make([]uint64, 0, len(vv))
	for src := range vv {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	return srcs
}

// IDs turns every entry into the id of the last op seen, sorted.
func (vv VV) IDs() (ids []ID) {
	for _, src := range vv.Sources() {
		ids = append(ids, IDFromSrcSeqOff(src, vv[src], 0))
	}
	return
}

func (vv VV) GetID(src uint64) ID {
	return IDFromSrcSeqOff(src, vv[src], 0)
}

func (vv VV) String() string {
	ids := vv.IDs()
	ret := make([]byte, 0, len(vv)*32)
	for i, id := range ids {
		if i > 0 {
			ret = append(ret, ',')
		}
		ret = append(ret, id.String()...)
	}
	return string(ret)
}

// VVFromString parses the String form; BadId-like garbage yields false.
func VVFromString(vvs string) (vv VV, ok bool) {
	vv = make(VV)
	rest := []byte(vvs)
	for len(rest) > 0 {
		var id ID
		id, rest = readIDFromString(rest)
		if id == BadId || id.Off() != 0 {
			return vv, false
		}
		vv.PutID(id)
		if len(rest) > 0 {
			if rest[0] != ',' {
				return vv, false
			}
			rest = rest[1:]
		}
	}
	return vv, true
}
