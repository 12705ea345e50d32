// file: cmd/serve/serve_test.go

package serve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

func TestServeStopsOnCancel(t *testing.T) {
	e, err := vdisk.Open(vdisk.Options{Geometry: vdisk.Geometry{TotalBlocks: 4, BlockSize: 1024}})
	require.NoError(t, err)

	opts := DefaultServeOptions()
	opts.Server.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, e, opts) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeBadAddress(t *testing.T) {
	e, err := vdisk.Open(vdisk.Options{Geometry: vdisk.Geometry{TotalBlocks: 4, BlockSize: 1024}})
	require.NoError(t, err)

	opts := DefaultServeOptions()
	opts.Server.Listen = "not-an-address"
	assert.Error(t, Serve(context.Background(), e, opts))
}
