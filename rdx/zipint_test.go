package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipUint64Pair(t *testing.T) {
	vals := []uint64{0, 1, 0xff, 0x100, 0xffff, 0x10000, 0xffffffff, 0x100000000, ^uint64(0)}
	for _, big := range vals {
		for _, lil := range vals {
			zip := ZipUint64Pair(big, lil)
			assert.True(t, ValidZipPairLen(len(zip)))
			b, l := UnzipUint64Pair(zip)
			assert.Equal(t, big, b)
			assert.Equal(t, lil, l)
		}
	}
}

func TestZipInt64(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		assert.Equal(t, i, UnzipInt64(ZipInt64(i)))
	}
	i, u := UnzipIntUint64Pair(ZipIntUint64Pair(-5, 77))
	assert.Equal(t, int64(-5), i)
	assert.Equal(t, uint64(77), u)
}
