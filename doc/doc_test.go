package doc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/nandit123/crdt-text-editor-2/protocol"
	"github.com/nandit123/crdt-text-editor-2/rdx"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memdoc(t *testing.T, src uint64) *Doc {
	d, err := Open(fmt.Sprintf("mem%x", src), Options{
		Src:     src,
		Name:    fmt.Sprintf("test replica %x", src),
		Logger:  utils.NewDefaultLogger(slog.LevelError),
		Options: pebble.Options{FS: vfs.NewMem()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func remoteInsert(src, seq uint64, rev int64, origin rdx.ID, text string) []byte {
	o := &Op{
		Kind:   OpInsert,
		ID:     rdx.IDFromSrcSeqOff(src, seq, 0),
		Time:   rdx.Time{Rev: rev, Src: src},
		Field:  "t",
		Origin: origin,
	}
	for _, r := range text {
		o.Values = append(o.Values, []byte(string(r)))
	}
	return o.Packet()
}

func TestDoc_Open(t *testing.T) {
	_, err := Open("nowhere", Options{Options: pebble.Options{FS: vfs.NewMem()}})
	assert.ErrorIs(t, err, ErrBadSource)

	d := memdoc(t, 0x1a)
	assert.Equal(t, uint64(0x1a), d.Source())
	assert.Equal(t, "test replica 1a", d.Name())
	assert.Empty(t, d.VersionVector())
}

func TestDoc_InsertDelete(t *testing.T) {
	ctx := context.Background()
	d := memdoc(t, 0xa)

	_, err := d.InsertText(ctx, "t", 0, "hello")
	require.NoError(t, err)
	_, err = d.InsertText(ctx, "t", 5, " world")
	require.NoError(t, err)
	_, err = d.DeleteText(ctx, "t", 0, 1)
	require.NoError(t, err)

	assert.Equal(t, "ello world", d.Text("t"))
	assert.Equal(t, 10, d.Len("t"))
	assert.Equal(t, rdx.VV{0xa: 3}, d.VersionVector())

	_, err = d.InsertText(ctx, "t", 11, "!")
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = d.DeleteText(ctx, "t", 8, 5)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, rdx.VV{0xa: 3}, d.VersionVector())

	items, vv := d.Items("t")
	assert.Len(t, items, 11)
	assert.True(t, items[0].Deleted())
	assert.False(t, items[0].VisibleAt(vv))
	assert.True(t, items[0].VisibleAt(rdx.VV{0xa: 2}))
	assert.False(t, items[6].VisibleAt(rdx.VV{0xa: 1}))
}

func TestDoc_LongText(t *testing.T) {
	ctx := context.Background()
	d := memdoc(t, 0xa)
	text := strings.Repeat("ab", MaxItemsPerOp/2+10)

	id, err := d.InsertText(ctx, "t", 0, text)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id.Seq())
	assert.Equal(t, rdx.VV{0xa: 2}, d.VersionVector())
	assert.Equal(t, text, d.Text("t"))
}

func TestDoc_Push(t *testing.T) {
	ctx := context.Background()
	d := memdoc(t, 0xa)
	for i := 0; i < 3; i++ {
		id, err := d.Push(ctx, "l", []byte{byte('a' + i)})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), id.Seq())
	}
	assert.Equal(t, [][]byte{{'a'}, {'b'}, {'c'}}, d.Values("l"))
	v, err := d.Value("l", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{'c'}, v)
	_, err = d.Value("l", 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, rdx.VV{0xa: 3}, d.VersionVector())
}

func TestDoc_Drain(t *testing.T) {
	ctx := context.Background()
	d := memdoc(t, 0xa)

	first := remoteInsert(0xb, 1, 1, rdx.ID0, "xy")
	require.NoError(t, d.Drain(ctx, protocol.Records{first}))
	assert.Equal(t, "xy", d.Text("t"))

	// seen ops are skipped
	require.NoError(t, d.Drain(ctx, protocol.Records{first}))
	assert.Equal(t, "xy", d.Text("t"))

	gap := remoteInsert(0xb, 3, 3, rdx.ID0, "z")
	assert.ErrorIs(t, d.Drain(ctx, protocol.Records{gap}), ErrOutOfOrder)

	orphan := remoteInsert(0xc, 1, 3, rdx.IDFromSrcSeqOff(0xd, 1, 0), "z")
	assert.ErrorIs(t, d.Drain(ctx, protocol.Records{orphan}), ErrCausalityBroken)

	assert.ErrorIs(t, d.Drain(ctx, protocol.Records{[]byte("junk")}), ErrBadPacket)
	assert.Equal(t, rdx.VV{0xb: 1}, d.VersionVector())

	// local ops come after everything seen
	id, err := d.InsertText(ctx, "t", 2, "!")
	require.NoError(t, err)
	assert.Equal(t, "xy!", d.Text("t"))
	items, _ := d.Items("t")
	assert.Equal(t, id, items[2].ID)
	assert.Equal(t, int64(2), items[2].Time.Rev)
}

func TestDoc_DrainStoreFails(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	opts := Options{
		Src:     0xa,
		Logger:  utils.NewDefaultLogger(slog.LevelError),
		Options: pebble.Options{FS: fs},
	}
	d, err := Open("ro", opts)
	require.NoError(t, err)
	require.NoError(t, d.Drain(ctx, protocol.Records{remoteInsert(0xb, 1, 1, rdx.ID0, "x")}))
	require.NoError(t, d.Close())

	opts.ReadOnly = true
	d, err = Open("ro", opts)
	require.NoError(t, err)
	defer d.Close()
	next := remoteInsert(0xb, 2, 2, rdx.IDFromSrcSeqOff(0xb, 1, 0), "y")
	assert.Error(t, d.Drain(ctx, protocol.Records{next}))
	assert.Equal(t, "x", d.Text("t"))
	assert.Equal(t, rdx.VV{0xb: 1}, d.VersionVector())
}

func TestDoc_Converge(t *testing.T) {
	ctx := context.Background()
	a := memdoc(t, 0xa)
	b := memdoc(t, 0xb)

	_, err := a.InsertText(ctx, "t", 0, "abc")
	require.NoError(t, err)
	require.NoError(t, SyncDuplex(ctx, a, b))
	assert.Equal(t, "abc", b.Text("t"))

	_, err = a.InsertText(ctx, "t", 1, "X")
	require.NoError(t, err)
	_, err = b.InsertText(ctx, "t", 1, "Y")
	require.NoError(t, err)
	_, err = b.DeleteText(ctx, "t", 3, 1)
	require.NoError(t, err)

	require.NoError(t, SyncDuplex(ctx, a, b))
	assert.Equal(t, "aYXb", a.Text("t"))
	assert.Equal(t, a.Text("t"), b.Text("t"))
	assert.Equal(t, rdx.VV{0xa: 2, 0xb: 2}, a.VersionVector())
	assert.Equal(t, a.VersionVector(), b.VersionVector())

	recs, err := a.FeedSince(rdx.VV{0xa: 1})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestDoc_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{Src: 0xa, Name: "disk", Logger: utils.NewDefaultLogger(slog.LevelError)}

	d, err := Open(dir, opts)
	require.NoError(t, err)
	_, err = d.InsertText(ctx, "t", 0, "persist")
	require.NoError(t, err)
	_, err = d.Push(ctx, "l", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, d.Drain(ctx, protocol.Records{remoteInsert(0xb, 1, 10, rdx.ID0, "b")}))
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), ErrClosed)

	d, err = Open(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, "bpersist", d.Text("t"))
	assert.Equal(t, rdx.VV{0xa: 2, 0xb: 1}, d.VersionVector())
	id, err := d.Push(ctx, "l", []byte("w"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id.Seq())
	require.NoError(t, d.Close())

	opts.Src = 0xc
	_, err = Open(dir, opts)
	assert.ErrorIs(t, err, ErrSourceMismatch)
}

func TestDoc_Observe(t *testing.T) {
	ctx := context.Background()
	d := memdoc(t, 0xa)
	var got []Event
	cancel := d.Observe("t", func(ev Event) {
		// the change is readable from the callback
		assert.Equal(t, ev.Inserted, d.Len("t"))
		got = append(got, ev)
	})
	_, err := d.InsertText(ctx, "t", 0, "hi")
	require.NoError(t, err)
	_, err = d.Push(ctx, "other", []byte("x"))
	require.NoError(t, err)
	cancel()
	_, err = d.InsertText(ctx, "t", 0, "ignored")
	require.NoError(t, err)

	assert.Equal(t, []Event{{Field: "t", Inserted: 2, Local: true}}, got)

	var all []Event
	d.Observe("", func(ev Event) { all = append(all, ev) })
	require.NoError(t, d.Drain(ctx, protocol.Records{
		remoteInsert(0xb, 1, 20, rdx.ID0, "a"),
		remoteInsert(0xb, 2, 21, rdx.ID0, "b"),
	}))
	assert.Equal(t, []Event{{Field: "t", Inserted: 2}}, all)
}

func TestDoc_Collector(t *testing.T) {
	d := memdoc(t, 0xa)
	_, err := d.InsertText(context.Background(), "t", 0, "x")
	require.NoError(t, err)
	assert.Equal(t, 7, testutil.CollectAndCount(NewCollector(d)))
}
