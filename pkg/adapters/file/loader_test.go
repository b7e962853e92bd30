package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(main, []byte("name: main"), 0644))

	l := NewLoader(nil)
	data, err := l.Load(main)
	require.NoError(t, err)
	assert.Equal(t, "name: main", string(data))

	_, err = l.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	assert.Equal(t, filepath.Join(dir, "frag", "a.yaml"), l.Resolve(main, "frag/a.yaml"))
}

func TestLoaderWatch(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(main, []byte("name: v1"), 0644))

	l := NewLoader(nil)
	l.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := l.Watch(ctx, main)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(main, []byte("name: v2"), 0644))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}
