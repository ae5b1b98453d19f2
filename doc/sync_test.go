package doc

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncer_FeedDiff(t *testing.T) {
	ctx := context.Background()
	a, b := memdoc(t, 0xa), memdoc(t, 0xb)
	_, err := a.InsertText(ctx, "t", 0, "abc")
	require.NoError(t, err)

	diff := func(peer *Doc) []byte {
		s := NewSyncer(a, "a")
		defer s.Close()
		ps := NewSyncer(peer, "peer")
		defer ps.Close()
		hs, err := ps.FeedHandshake()
		require.NoError(t, err)
		require.NoError(t, s.DrainHandshake(hs[0]))
		_, err = s.FeedHandshake()
		require.NoError(t, err)
		recs, err := s.FeedDiff()
		assert.Equal(t, io.EOF, err)
		var joined []byte
		for _, r := range recs {
			joined = append(joined, r...)
		}
		return joined
	}

	assert.NotEmpty(t, diff(b))
	require.NoError(t, SyncSimplex(ctx, a, b))
	assert.Equal(t, "abc", b.Text("t"))
	assert.Empty(t, diff(b))

	_, err = a.DeleteText(ctx, "t", 0, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, diff(b))
}

func TestSyncState_String(t *testing.T) {
	assert.Equal(t, "SendDiff", SendDiff.String())
	assert.Equal(t, "SyncState(7)", SyncState(7).String())
}
