// file: pkg/vdisk/defrag_test.go

package vdisk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// place registers a file at exact blocks
func place(t *testing.T, st *state, f *File) {
	t.Helper()
	require.NoError(t, st.table.assign(f.Blocks, f.ID))
	require.NoError(t, st.files.Insert(f))
	if f.ID >= st.nextID {
		st.nextID = f.ID + 1
	}
}

func TestCompact(t *testing.T) {
	st := newState(12)
	place(t, st, &File{ID: 1, Filename: "a", AllocationType: Contiguous, Blocks: []int{8, 9}})
	place(t, st, &File{ID: 2, Filename: "b", AllocationType: Linked, Blocks: []int{6, 1, 4}})
	place(t, st, &File{ID: 3, Filename: "c", AllocationType: Indexed, Blocks: []int{11, 3, 10}})

	report, err := compact(st.table, st.files)
	require.NoError(t, err)
	assert.False(t, report.NoOp)

	a, _ := st.files.Get(1)
	b, _ := st.files.Get(2)
	c, _ := st.files.Get(3)
	assert.Equal(t, []int{0, 1}, a.Blocks)
	assert.Equal(t, []int{2, 3, 4}, b.Blocks, "chain position i maps to run position i")
	assert.Equal(t, []int{5, 6, 7}, c.Blocks)

	idx, _ := c.IndexBlock()
	assert.Equal(t, 5, idx)
	assert.Equal(t, []int{6, 7}, c.DataBlocks())

	assert.Equal(t, Linked, b.AllocationType)
	assert.Equal(t, 3, report.FilesRelocated)
	assert.Equal(t, 7, report.BlocksMoved)

	assert.Zero(t, Fragmentation(st.table))
	assert.Equal(t, []Run{{Start: 8, Length: 4}}, FreeRuns(st.table))
	require.NoError(t, checkState(st))
}

func TestCompactAlreadyPacked(t *testing.T) {
	st := newState(4)
	place(t, st, &File{ID: 1, Filename: "a", AllocationType: Contiguous, Blocks: []int{0, 1}})

	report, err := compact(st.table, st.files)
	require.NoError(t, err)
	assert.Zero(t, report.FilesRelocated)
	assert.Zero(t, report.BlocksMoved)
}

func TestCompactEmptyRegistry(t *testing.T) {
	st := newState(4)
	st.table.owners[2] = 7 // orphan

	report, err := compact(st.table, st.files)
	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Equal(t, FileID(7), st.table.owners[2], "a no-op leaves the table alone")
}

func TestCompactClearsOrphans(t *testing.T) {
	st := newState(6)
	place(t, st, &File{ID: 1, Filename: "a", AllocationType: Linked, Blocks: []int{3}})
	st.table.owners[0] = 9

	_, err := compact(st.table, st.files)
	require.NoError(t, err)
	assert.Empty(t, orphanBlocks(st.table, st.files))
	assert.Equal(t, 5, st.table.FreeCount())
}
