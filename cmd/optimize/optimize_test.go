// file: cmd/optimize/optimize_test.go

package optimize

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// messy uploads a duplicate name and a junk file, then frees the first
// upload so the disk is fragmented.
func messy(t *testing.T) *vdisk.Engine {
	t.Helper()
	e, err := vdisk.Open(vdisk.Options{Geometry: vdisk.Geometry{TotalBlocks: 20, BlockSize: 1024}})
	require.NoError(t, err)

	gap, err := e.Upload("gap.bin", bytes.Repeat([]byte{0}, 2*1024), vdisk.Contiguous)
	require.NoError(t, err)
	for _, name := range []string{"photo.jpg", "photo.jpg", "build.tmp"} {
		_, err := e.Upload(name, []byte(name), vdisk.Contiguous)
		require.NoError(t, err)
	}
	require.NoError(t, e.Delete(gap.ID))
	return e
}

func TestOptimizeDryRun(t *testing.T) {
	e := messy(t)
	before := e.Stats()

	var out bytes.Buffer
	require.NoError(t, Optimize(e, &OptimizeOptions{DryRun: true, JSON: true, Out: &out}))

	var p Preview
	require.NoError(t, json.Unmarshal(out.Bytes(), &p))
	require.Len(t, p.Housekeeping.Duplicates, 1)
	assert.Equal(t, vdisk.FileID(3), p.Housekeeping.Duplicates[0].File.ID)
	require.Len(t, p.Housekeeping.Junk, 1)
	assert.Equal(t, "build.tmp", p.Housekeeping.Junk[0].Filename)
	assert.Len(t, p.Recommendations, 3)
	assert.Equal(t, before, e.Stats(), "dry run must not change the disk")
}

func TestOptimizeApply(t *testing.T) {
	e := messy(t)

	var out bytes.Buffer
	require.NoError(t, Optimize(e, &OptimizeOptions{Out: &out}))

	s := out.String()
	assert.Contains(t, s, "Duplicate: photo.jpg (id 3) repeats id 2")
	assert.Contains(t, s, "Junk:      build.tmp (id 4)")
	assert.Contains(t, s, "Relocated 3 files, moved 3 blocks")
	assert.Contains(t, s, "-> 0.00%")
	assert.Len(t, e.ListFiles(), 3, "optimize never deletes files")
}
