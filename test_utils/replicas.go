package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/nandit123/crdt-text-editor-2/doc"
	"github.com/nandit123/crdt-text-editor-2/utils"
	"github.com/stretchr/testify/require"
)

// OpenMem opens an in-memory replica closed at the end of the test.
func OpenMem(t testing.TB, src uint64) *doc.Doc {
	t.Helper()
	d, err := doc.Open(fmt.Sprintf("mem%x", src), doc.Options{
		Src:     src,
		Name:    fmt.Sprintf("replica %x", src),
		Logger:  utils.NewDefaultLogger(slog.LevelError),
		Options: pebble.Options{FS: vfs.NewMem()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// SyncData exchanges ops between a and b both ways.
func SyncData(a, b *doc.Doc) error {
	return doc.SyncDuplex(context.Background(), a, b)
}

// SyncAll brings every replica to the union of their states.
func SyncAll(replicas ...*doc.Doc) error {
	for i := 1; i < len(replicas); i++ {
		if err := SyncData(replicas[0], replicas[i]); err != nil {
			return err
		}
	}
	for i := 1; i < len(replicas); i++ {
		if err := SyncData(replicas[0], replicas[i]); err != nil {
			return err
		}
	}
	return nil
}
