package rdx

// Time is a Lamport timestamp: the revision grows past every revision
// a replica has seen, Src breaks ties.
type Time struct {
	Rev int64
	Src uint64
}

func (t Time) ZipBytes() []byte {
	return ZipIntUint64Pair(t.Rev, t.Src)
}

func TimeFromZipBytes(zip []byte) (t Time) {
	t.Rev, t.Src = UnzipIntUint64Pair(zip)
	return
}

func (t Time) Compare(b Time) int {
	switch {
	case t.Rev < b.Rev:
		return -1
	case t.Rev > b.Rev:
		return 1
	case t.Src < b.Src:
		return -1
	case t.Src > b.Src:
		return 1
	}
	return 0
}

// Clock hands out Lamport revisions.
type Clock struct {
	Rev int64
}

// See moves the clock past a revision received from elsewhere.
func (c *Clock) See(rev int64) {
	if rev > c.Rev {
		c.Rev = rev
	}
}

// Tick returns the revision for a new local op.
func (c *Clock) Tick() int64 {
	c.Rev++
	return c.Rev
}
