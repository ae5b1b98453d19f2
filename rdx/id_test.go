package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCases(t *testing.T) {
	id := IDFromSrcSeqOff(0x1a, 3, 7)
	zip := id.ZipBytes()
	assert.Equal(t, id, IDFromZipBytes(zip))
	assert.Equal(t, BadId, IDFromZipBytes(make([]byte, 7)))
}

func TestParseID(t *testing.T) {
	ids := []string{
		"1-0",
		"3-1",
		"fa3-57",
		"fffff-ffffffff-ffa",
	}
	for _, str := range ids {
		id, rest := readIDFromString([]byte(str))
		assert.NotEqual(t, BadId, id)
		assert.Empty(t, rest)
		assert.Equal(t, str, id.String())
	}
	for _, bad := range []string{"zz", "1-2-3-4", "1-2-1000"} {
		id, _ := readIDFromString([]byte(bad))
		assert.Equal(t, BadId, id, bad)
	}
}

func TestFieldNameType(t *testing.T) {
	src := uint64(0x8e)
	seq := uint64(0x82f0)
	id := IDFromSrcSeqOff(src, seq, 1)
	assert.Equal(t, "8e-82f0-1", id.String())
	assert.Equal(t, seq, id.Seq())
	assert.Equal(t, uint64(1), id.Off())
	assert.Equal(t, "8e-82f0-5", id.ToOff(5).String())
}

func TestTimeOrder(t *testing.T) {
	a := Time{Rev: 3, Src: 0xb}
	b := Time{Rev: 4, Src: 0xa}
	c := Time{Rev: 4, Src: 0xb}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 0, c.Compare(c))
	assert.Equal(t, c, TimeFromZipBytes(c.ZipBytes()))

	var clock Clock
	assert.Equal(t, int64(1), clock.Tick())
	clock.See(10)
	assert.Equal(t, int64(11), clock.Tick())
	clock.See(3)
	assert.Equal(t, int64(12), clock.Tick())
}
