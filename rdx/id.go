package rdx

import (
	"strconv"
)

/*
ID identifies an op or one item produced by an op.
This is *log time*, not *logical time*: seq counts the ops of one
replica, the offset numbers the items a single op produced.

	src: replica id (64 bits, 0 is reserved)
	pro: progress, seq<<12 | offset

0...............16..............32..............48.............64
+-------+-------+-------+-------+-------+-------+-------+-------
|..........................source.(64.bits)......................|
|.....................sequence.(52.bits)...........|..offset(12)..|
*/
type ID struct {
	src uint64
	pro uint64
}

const offBits = 12
const OffMask = uint64(1<<offBits) - 1

// MaxOff bounds the number of items one op may produce.
const MaxOff = OffMask

var ID0 ID = ID{}

var BadId = ID{^uint64(0), ^uint64(0)}

func IDFromSrcSeqOff(src uint64, seq uint64, off uint16) ID {
	pro := seq<<offBits | (uint64(off) & OffMask)
	return ID{src, pro}
}

// Src is the replica id.
func (id ID) Src() uint64 {
	return id.src
}

// Seq is the op sequence number (each replica generates its own
// sequence numbers starting at 1)
func (id ID) Seq() uint64 {
	return id.pro >> offBits
}

func (id ID) Off() uint64 {
	return id.pro & OffMask
}

func (id ID) ToOff(newoff uint64) ID {
	return ID{id.src, id.pro&^OffMask | (newoff & OffMask)}
}

func (id ID) ZipBytes() []byte {
	return ZipUint64Pair(id.src, id.pro)
}

// IDFromZipBytes is the inverse of ZipBytes; BadId on a malformed input.
func IDFromZipBytes(zip []byte) ID {
	if !ValidZipPairLen(len(zip)) {
		return BadId
	}
	big, lil := UnzipUint64Pair(zip)
	return ID{
		src: big,
		pro: lil,
	}
}

func (id ID) String() string {
	var buf [64]byte
	b := buf[:0]

	b = strconv.AppendUint(b, id.Src(), 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.Seq(), 16)

	if off := id.Off(); off != 0 {
		b = append(b, '-')
		b = strconv.AppendUint(b, off, 16)
	}

	return string(b)
}

// reads src-seq[-off] in hex, returns the rest of the input
func readIDFromString(idstr []byte) (ID, []byte) {
	var parts [3]uint64
	i, p := 0, 0
	digits := 0
	for i < len(idstr) && p < 3 {
		c := idstr[i]
		if c >= '0' && c <= '9' {
			parts[p] = (parts[p] << 4) | uint64(c-'0')
		} else if c >= 'A' && c <= 'F' {
			parts[p] = (parts[p] << 4) | uint64(10+c-'A')
		} else if c >= 'a' && c <= 'f' {
			parts[p] = (parts[p] << 4) | uint64(10+c-'a')
		} else if c == '-' {
			p++
			i++
			continue
		} else {
			break
		}
		digits++
		i++
	}
	rest := idstr[i:]

	if digits == 0 || p == 0 || p >= 3 {
		return BadId, rest
	}
	if parts[1] >= 1<<(64-offBits) || parts[2] > OffMask {
		return BadId, rest
	}

	return IDFromSrcSeqOff(parts[0], parts[1], uint16(parts[2])), rest
}
