package versions_test

import (
	"context"
	"testing"
	"time"

	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/snapshot"
	testutils "github.com/nandit123/crdt-text-editor-2/test_utils"
	"github.com/nandit123/crdt-text-editor-2/versions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	r1 = uint64(0x1a)
	r2 = uint64(0x2b)
)

var fixed = time.UnixMilli(1700000000123)

func clock() versions.CaptureOption {
	return versions.WithClock(func() time.Time { return fixed })
}

func TestVersion_Bytes(t *testing.T) {
	v := versions.Version{
		CapturedAt: fixed,
		Snapshot:   snapshot.Encode(rdx.VV{r1: 3}),
		AuthorID:   r1,
	}
	parsed, err := versions.ParseVersion(v.Bytes())
	require.NoError(t, err)
	assert.True(t, v.CapturedAt.Equal(parsed.CapturedAt))
	assert.Equal(t, v.Snapshot, parsed.Snapshot)
	assert.Equal(t, r1, parsed.AuthorID)

	empty, err := versions.ParseVersion(versions.Version{CapturedAt: fixed}.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte{}, empty.Snapshot)

	b := v.Bytes()
	for _, bad := range [][]byte{nil, b[:len(b)-1], append(b, 'x'), protocol.Record('X', []byte("?"))} {
		_, err = versions.ParseVersion(bad)
		assert.ErrorIs(t, err, versions.ErrBadVersion)
	}
}

// Scenario A: nothing to record in an empty document.
func TestCapture_EmptyDocument(t *testing.T) {
	ctx := context.Background()
	d := testutils.OpenMem(t, r1)
	log := versions.NewLog(d)

	_, ok, err := log.Capture(ctx, clock())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, log.Len())

	_, err = d.InsertText(ctx, "text", 0, "a")
	require.NoError(t, err)
	v, ok, err := log.Capture(ctx, clock())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snapshot.Encode(rdx.VV{r1: 1}), v.Snapshot)
	assert.Equal(t, r1, v.AuthorID)
	assert.True(t, fixed.Equal(v.CapturedAt))
	assert.Equal(t, 1, log.Len())
}

// Scenarios B and C.
func TestCapture_CausalityAdjustment(t *testing.T) {
	ctx := context.Background()
	a := testutils.OpenMem(t, r1)
	b := testutils.OpenMem(t, r2)
	loga, logb := versions.NewLog(a), versions.NewLog(b)

	for i := 0; i < 3; i++ {
		_, err := a.InsertText(ctx, "text", i, "x")
		require.NoError(t, err)
	}
	v1, ok, err := versions.Capture(ctx, a, clock())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.Encode(rdx.VV{r1: 3}), v1.Snapshot)
	// the append itself is the fourth op of r1
	assert.Equal(t, rdx.VV{r1: 4}, a.VersionVector())

	before := testutil.ToFloat64(versions.CaptureResults.WithLabelValues("unchanged"))
	_, ok, err = loga.Capture(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, testutils.SyncData(a, b))
	_, ok, err = logb.Capture(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, logb.Len())
	assert.Equal(t, before+2, testutil.ToFloat64(versions.CaptureResults.WithLabelValues("unchanged")))

	_, err = b.InsertText(ctx, "text", 0, "y")
	require.NoError(t, err)
	assert.Equal(t, rdx.VV{r1: 4, r2: 1}, b.VersionVector())
	v2, ok, err := logb.Capture(ctx, clock())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.Encode(rdx.VV{r1: 4, r2: 1}), v2.Snapshot)
	assert.Equal(t, r2, v2.AuthorID)
	assert.Equal(t, 2, logb.Len())
}

// P1: repeated captures with no edits in between append at most once.
func TestCapture_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := testutils.OpenMem(t, r1)
	log := versions.NewLog(d)
	_, err := d.InsertText(ctx, "text", 0, "hello")
	require.NoError(t, err)

	appended := 0
	for i := 0; i < 5; i++ {
		_, ok, err := log.Capture(ctx)
		require.NoError(t, err)
		if ok {
			appended++
		}
	}
	assert.Equal(t, 1, appended)
	assert.Equal(t, 1, log.Len())
}

func TestCapture_CorruptPrevious(t *testing.T) {
	ctx := context.Background()
	d := testutils.OpenMem(t, r1)
	log := versions.NewLog(d)
	_, err := log.Append(ctx, versions.Version{CapturedAt: fixed, Snapshot: []byte("junk"), AuthorID: r1})
	require.NoError(t, err)

	_, ok, err := log.Capture(ctx)
	assert.ErrorIs(t, err, snapshot.ErrCorruptSnapshot)
	assert.False(t, ok)
	assert.Equal(t, 1, log.Len())
}

// P3 and P5: offline captures on two replicas both survive the sync.
func TestLog_Convergence(t *testing.T) {
	ctx := context.Background()
	a := testutils.OpenMem(t, r1)
	b := testutils.OpenMem(t, r2)
	loga, logb := versions.NewLog(a), versions.NewLog(b)

	var lens []int
	cancel := loga.OnAppend(func(n int) { lens = append(lens, n) })
	defer cancel()

	_, err := a.InsertText(ctx, "text", 0, "from a")
	require.NoError(t, err)
	_, err = b.InsertText(ctx, "text", 0, "from b")
	require.NoError(t, err)
	va, ok, err := loga.Capture(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	vb, ok, err := logb.Capture(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, testutils.SyncData(a, b))
	assert.Equal(t, 2, loga.Len())
	assert.Equal(t, 2, logb.Len())

	alla, err := loga.All()
	require.NoError(t, err)
	allb, err := logb.All()
	require.NoError(t, err)
	assert.Equal(t, alla, allb)
	assert.ElementsMatch(t, [][]byte{va.Snapshot, vb.Snapshot},
		[][]byte{alla[0].Snapshot, alla[1].Snapshot})
	assert.Equal(t, []int{1, 2}, lens)

	// a later capture lands after both
	_, err = a.InsertText(ctx, "text", 0, "!")
	require.NoError(t, err)
	v3, ok, err := loga.Capture(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	last, ok, err := loga.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v3.Snapshot, last.Snapshot)
	assert.Equal(t, []int{1, 2, 3}, lens)

	_, err = loga.At(3)
	assert.Error(t, err)
}

// Scenario D.
func TestList(t *testing.T) {
	ctx := context.Background()
	d := testutils.OpenMem(t, r1)
	log := versions.NewLog(d)

	listed, err := versions.List(log)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = d.InsertText(ctx, "text", 0, "one")
	require.NoError(t, err)
	v1, _, err := log.Capture(ctx, clock())
	require.NoError(t, err)
	_, err = d.InsertText(ctx, "text", 3, " two")
	require.NoError(t, err)
	v2, _, err := log.Capture(ctx, clock())
	require.NoError(t, err)

	listed, err = versions.List(log)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 0, listed[0].Index)
	assert.Nil(t, listed[0].Prev)
	assert.Equal(t, v1.Snapshot, listed[0].Version.Snapshot)
	assert.Equal(t, 1, listed[1].Index)
	assert.Equal(t, v1.Snapshot, listed[1].Prev)
	assert.Equal(t, v2.Snapshot, listed[1].Version.Snapshot)
}
