// Protocol format is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

/*
Package protocol implements the TLV (Type-Length-Value) records every op
packet, snapshot and version entry of the document is made of.

# Record Format

A record header takes one of three forms, picked by body size and type case:

 1. Tiny (1 byte): ['0' + body_length] for bodies of 0..9 bytes written with
    a lowercase type. The type is lost and reads back as '0'.
 2. Short (2 bytes): [lowercase_type, body_length] for bodies up to 255 bytes.
 3. Long (5 bytes): [uppercase_type, 4-byte little-endian length].

Record types are letters A..Z.

# Parsing

Take and TakeAny are for trusted input and signal problems with nil bodies.
TakeWary and TakeAnyWary are for input off the wire or the disk and return
ErrIncomplete or ErrBadRecord.

# Streaming

	bookmark, buf := OpenHeader(buf, 'X')
	buf = append(buf, data...)
	CloseHeader(buf, bookmark)
*/
package protocol

import (
	"encoding/binary"
	"errors"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader reads a record header.
//
// Returns:
//   - lit: record type ('A'-'Z', '0' for tiny, '-' for error, 0 for incomplete)
//   - hdrlen: header length (1, 2, or 5 bytes)
//   - bodylen: body length in bytes
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	if dlit >= '0' && dlit <= '9' { // tiny
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	} else if dlit >= 'a' && dlit <= 'z' { // short
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	} else if dlit >= 'A' && dlit <= 'Z' { // long
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	} else {
		lit = '-'
	}
	return
}

// AppendHeader appends a record header, picking the shortest form allowed.
// A lowercase lit enables the tiny form.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("ToyTLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		ret = append(into, byte('0'+bodylen))
	} else if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	} else {
		ret = append(into, lit|CaseBit, byte(bodylen))
	}
	return ret
}

// Take extracts a record of the given type from trusted data.
// A nil body with the original data means incomplete, nil/nil means
// a record of another type.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAny extracts the next record of any type from trusted data.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = Lit(data)
	body, rest = Take(lit, data)
	return
}

// TakeWary extracts a record of the given type from untrusted data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == '-' {
		return nil, nil, ErrBadRecord
	}
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAnyWary extracts the next record of any type from untrusted data.
func TakeAnyWary(data []byte) (lit byte, body, rest []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil, ErrIncomplete
	}
	lit = Lit(data)
	if lit == '-' {
		return 0, nil, nil, ErrBadRecord
	}
	body, rest, err = TakeWary(lit, data)
	if err != nil {
		lit = 0
	}
	return
}

// TotalLen calculates the total length of multiple byte slices.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Lit returns the canonical record type of a record's first byte
// ('A'-'Z', '0' for tiny, '-' for invalid).
func Lit(rec []byte) byte {
	b := rec[0]
	if b >= 'a' && b <= 'z' {
		return b - CaseBit
	} else if b >= 'A' && b <= 'Z' {
		return b
	} else if b >= '0' && b <= '9' {
		return '0'
	} else {
		return '-'
	}
}

// Append appends a complete record to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	total := TotalLen(body)
	res = AppendHeader(into, lit, total)
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record creates a complete record.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// TinyRecord is Record with the tiny form enabled.
func TinyRecord(lit byte, body []byte) (tiny []byte) {
	return Record((lit&^CaseBit)|CaseBit, body)
}

// Concat concatenates byte slices with a single allocation.
func Concat(msg ...[]byte) []byte {
	total := TotalLen(msg)
	ret := make([]byte, 0, total)
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// OpenHeader begins a streamed record of an unknown length, always in
// the long form. Pair it with CloseHeader.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &= ^CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV liters are uppercase A-Z")
	}
	res = append(buf, lit)
	blanclen := []byte{0, 0, 0, 0}
	res = append(res, blanclen...)
	return len(res), res
}

// CloseHeader writes the body length of a record started by OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("check the API docs")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}
