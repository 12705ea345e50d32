// file: pkg/vdisk/engine_test.go

package vdisk

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Persister that can be told to fail
type memStore struct {
	mu          sync.Mutex
	snap        *Snapshot
	events      []AuditEvent
	failPersist bool
	failAppend  bool
	persists    int
}

func (m *memStore) PersistSnapshot(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPersist {
		return errStoreDown
	}
	m.snap = snap
	m.persists++
	return nil
}

func (m *memStore) LoadSnapshot() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memStore) AppendLog(event AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errStoreDown
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) LoadLog() ([]AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEvent(nil), m.events...), nil
}

// newTestEngine opens an engine of n one-kilobyte blocks
func newTestEngine(t *testing.T, n int, opts ...func(*Options)) *Engine {
	t.Helper()
	o := Options{
		Geometry: Geometry{TotalBlocks: n, BlockSize: 1024},
		Now:      func() time.Time { return testEpoch },
	}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := Open(o)
	require.NoError(t, err)
	return e
}

func withStore(s Persister) func(*Options) {
	return func(o *Options) { o.Store = s }
}

func kb(n int) []byte {
	return bytes.Repeat([]byte{'x'}, n*1024)
}

func blocksOf(t *testing.T, e *Engine, id FileID) []int {
	t.Helper()
	d, err := e.File(id)
	require.NoError(t, err)
	return d.Blocks
}

func TestOpenDefaults(t *testing.T) {
	e, err := Open(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeometry(), e.Geometry())
	assert.Len(t, e.ListBlocks(), DefaultTotalBlocks)
	assert.Empty(t, e.ListFiles())

	log := e.AuditLog(0)
	require.Len(t, log, 1)
	assert.Equal(t, "Disk created", log[0].Action)
	assert.NotEmpty(t, log[0].ID)
}

func TestOpenRejectsBadGeometry(t *testing.T) {
	_, err := Open(Options{Geometry: Geometry{TotalBlocks: 10, BlockSize: 1000}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Open(Options{Geometry: Geometry{TotalBlocks: -1, BlockSize: 1024}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompactionScenario(t *testing.T) {
	e := newTestEngine(t, 10)

	first, err := e.Upload("first.bin", kb(4), Contiguous)
	require.NoError(t, err)
	assert.Equal(t, FileID(1), first.ID)
	assert.Equal(t, 4, first.SizeKB)
	assert.Equal(t, []int{0, 1, 2, 3}, blocksOf(t, e, first.ID))

	second, err := e.Upload("second.bin", kb(3), Linked)
	require.NoError(t, err)
	assert.Equal(t, FileID(2), second.ID)
	assert.Equal(t, []int{4, 5, 6}, blocksOf(t, e, second.ID))

	require.NoError(t, e.Delete(first.ID))
	assert.Equal(t, []Run{{Start: 0, Length: 4}, {Start: 7, Length: 3}}, e.FreeRuns())
	assert.Greater(t, e.Fragmentation(), 0.0)

	report, err := e.Defragment()
	require.NoError(t, err)
	assert.False(t, report.NoOp)
	assert.Equal(t, 1, report.FilesRelocated)
	assert.Equal(t, []int{0, 1, 2}, blocksOf(t, e, second.ID))
	assert.Zero(t, e.Fragmentation())
	require.NoError(t, e.Check())
}

func TestScatteredFreeSpaceScenario(t *testing.T) {
	e := newTestEngine(t, 10)
	for i := 0; i < 10; i++ {
		_, err := e.Upload("f.bin", kb(1), Contiguous)
		require.NoError(t, err)
	}
	require.NoError(t, e.Delete(2)) // block 1
	require.NoError(t, e.Delete(5)) // block 4

	_, err := e.Upload("wide.bin", kb(2), Contiguous)
	require.ErrorIs(t, err, ErrInsufficientContiguousSpace)
	assert.Len(t, e.ListFiles(), 8, "failed upload changes nothing")

	linked, err := e.Upload("wide.bin", kb(2), Linked)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, blocksOf(t, e, linked.ID))

	_, err = e.Upload("more.bin", kb(1), Linked)
	assert.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestUploadIndexed(t *testing.T) {
	e := newTestEngine(t, 10)

	f, err := e.Upload("idx.dat", kb(2), Indexed)
	require.NoError(t, err)
	assert.Equal(t, 3, f.BlocksCount)

	d, err := e.File(f.ID)
	require.NoError(t, err)
	require.NotNil(t, d.IndexBlock)
	assert.Equal(t, 0, *d.IndexBlock)
	assert.Equal(t, []int{1, 2}, d.IndexPayload)
	assert.Equal(t, int64(2048), d.SizeBytes)
	assert.Len(t, d.SHA256, 64)

	_, err = e.Upload("big.dat", kb(7), Indexed)
	assert.ErrorIs(t, err, ErrInsufficientSpace, "7 data blocks plus an index do not fit in 7 free blocks")
}

func TestUploadSizes(t *testing.T) {
	e := newTestEngine(t, 100, func(o *Options) {
		o.Geometry.BlockSize = 4096
	})

	tests := []struct {
		bytes      int
		wantKB     int
		wantBlocks int
	}{
		{1, 1, 1},
		{1024, 1, 1},
		{4096, 4, 1},
		{4097, 5, 2},
		{10 * 1024, 10, 3},
	}

	for _, tt := range tests {
		f, err := e.Upload("f.bin", bytes.Repeat([]byte{1}, tt.bytes), Linked)
		require.NoError(t, err)
		assert.Equal(t, tt.wantKB, f.SizeKB, "bytes=%d", tt.bytes)
		assert.Equal(t, tt.wantBlocks, f.BlocksCount, "bytes=%d", tt.bytes)
	}
}

func TestUploadValidation(t *testing.T) {
	e := newTestEngine(t, 10)

	tests := []struct {
		name     string
		filename string
		content  []byte
		typ      AllocationType
	}{
		{"empty filename", "", kb(1), Contiguous},
		{"blank filename", "   ", kb(1), Contiguous},
		{"directory only", "/", kb(1), Contiguous},
		{"parent directory", "..", kb(1), Contiguous},
		{"empty content", "a.txt", nil, Contiguous},
		{"unknown type", "a.txt", kb(1), AllocationType(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Upload(tt.filename, tt.content, tt.typ)
			require.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	assert.Empty(t, e.ListFiles())
	assert.Equal(t, 10, e.Stats().FreeBlocks)
}

func TestUploadStripsDirectories(t *testing.T) {
	e := newTestEngine(t, 10)
	f, err := e.Upload(`C:\Users\me\report.pdf`, kb(1), Contiguous)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", f.Filename)

	f, err = e.Upload(" ../../etc/passwd ", kb(1), Contiguous)
	require.NoError(t, err)
	assert.Equal(t, "passwd", f.Filename)
}

func TestDelete(t *testing.T) {
	e := newTestEngine(t, 10)
	f, err := e.Upload("a.txt", kb(3), Indexed)
	require.NoError(t, err)

	err = e.Delete(99)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.Delete(f.ID))
	assert.Empty(t, e.ListFiles())
	assert.Equal(t, 10, e.Stats().FreeBlocks)

	_, err = e.File(f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, e.Delete(f.ID), ErrNotFound)
}

func TestIDsAreNeverReused(t *testing.T) {
	e := newTestEngine(t, 10)
	a, _ := e.Upload("a", kb(1), Linked)
	require.NoError(t, e.Delete(a.ID))
	b, err := e.Upload("b", kb(1), Linked)
	require.NoError(t, err)
	assert.Equal(t, FileID(2), b.ID)

	require.NoError(t, e.Reset())
	c, err := e.Upload("c", kb(1), Linked)
	require.NoError(t, err)
	assert.Equal(t, FileID(3), c.ID)
}

func TestDefragmentEmpty(t *testing.T) {
	e := newTestEngine(t, 10)

	report, err := e.Defragment()
	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Equal(t, "Defragmentation skipped: no files", e.AuditLog(1)[0].Action)
}

func TestOptimize(t *testing.T) {
	e := newTestEngine(t, 20)
	for _, name := range []string{"a.txt", "gap1", "a.txt", "gap2", "b.txt", "x.tmp"} {
		_, err := e.Upload(name, kb(2), Linked)
		require.NoError(t, err)
	}
	require.NoError(t, e.Delete(2))
	require.NoError(t, e.Delete(4))
	before := e.ListFiles()
	fragBefore := e.Fragmentation()
	require.Greater(t, fragBefore, 0.0)

	report, err := e.Optimize()
	require.NoError(t, err)

	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, DuplicatePair{
		File1: "a.txt", File2: "a.txt", File1ID: 1, File2ID: 3, Similarity: 100,
	}, report.Duplicates[0])
	require.Len(t, report.Junk, 1)
	assert.Equal(t, "x.tmp", report.Junk[0].Filename)

	assert.InDelta(t, fragBefore, report.BeforeFragmentation, 1e-9)
	assert.Zero(t, report.AfterFragmentation)
	assert.Zero(t, report.OrphanBlocks)

	after := e.ListFiles()
	require.Len(t, after, len(before), "optimize never deletes files")
	for i := range before {
		assert.Equal(t, before[i].BlocksCount, after[i].BlocksCount)
		assert.Equal(t, before[i].AllocationType, after[i].AllocationType)
	}
	assert.Contains(t, e.AuditLog(1)[0].Action, "Optimization complete: 1 duplicates")
}

func TestOptimizeReclaimsOrphans(t *testing.T) {
	e := newTestEngine(t, 10)
	_, err := e.Upload("a", kb(2), Contiguous)
	require.NoError(t, err)

	// Simulate a crash that left blocks behind a deleted file
	e.st.table.owners[7] = 77
	e.st.table.owners[8] = 77
	assert.Equal(t, []int{7, 8}, e.Orphans())
	assert.NoError(t, e.Check(), "orphans are tolerated")

	report, err := e.Optimize()
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrphanBlocks)
	assert.Empty(t, e.Orphans())
	assert.Equal(t, 8, e.Stats().FreeBlocks)
}

func TestFailedPersistLeavesStateUnchanged(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(t, 10, withStore(store))

	_, err := e.Upload("a", kb(2), Linked)
	require.NoError(t, err)
	_, err = e.Upload("b", kb(2), Linked)
	require.NoError(t, err)
	require.NoError(t, e.Delete(1))

	blocksBefore := e.ListBlocks()
	logBefore := e.AuditLog(0)
	store.failPersist = true

	_, err = e.Upload("c", kb(1), Contiguous)
	assert.ErrorIs(t, err, errStoreDown)
	assert.ErrorIs(t, e.Delete(2), errStoreDown)
	_, err = e.Defragment()
	assert.ErrorIs(t, err, errStoreDown)
	_, err = e.Optimize()
	assert.ErrorIs(t, err, errStoreDown)
	_, err = e.SetCompressed(2, true)
	assert.ErrorIs(t, err, errStoreDown)
	assert.ErrorIs(t, e.Reset(), errStoreDown)

	assert.Equal(t, blocksBefore, e.ListBlocks())
	assert.Equal(t, logBefore, e.AuditLog(0))
	assert.Equal(t, []int{2, 3}, blocksOf(t, e, 2))

	store.failPersist = false
	c, err := e.Upload("c", kb(1), Contiguous)
	require.NoError(t, err)
	assert.Equal(t, FileID(3), c.ID, "failed uploads do not consume ids")
}

func TestFailedAppendKeepsMutation(t *testing.T) {
	store := &memStore{failAppend: true}
	e := newTestEngine(t, 10, withStore(store))

	_, err := e.Upload("a", kb(1), Linked)
	require.NoError(t, err)
	assert.Len(t, e.ListFiles(), 1)
	assert.Empty(t, store.events)
	assert.Len(t, e.AuditLog(0), 2)
}

func TestReopenFromStore(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(t, 10, withStore(store))

	_, err := e.Upload("a.txt", kb(2), Contiguous)
	require.NoError(t, err)
	b, err := e.Upload("b.txt", kb(3), Linked)
	require.NoError(t, err)
	_, err = e.SetCompressed(b.ID, true)
	require.NoError(t, err)

	reopened, err := Open(Options{Store: store, Now: func() time.Time { return testEpoch }})
	require.NoError(t, err)

	assert.Equal(t, e.Geometry(), reopened.Geometry())
	assert.Equal(t, e.ListFiles(), reopened.ListFiles())
	assert.Equal(t, e.ListBlocks(), reopened.ListBlocks())
	assert.Equal(t, e.AuditLog(0), reopened.AuditLog(0))

	c, err := reopened.Upload("c.txt", kb(1), Linked)
	require.NoError(t, err)
	assert.Equal(t, FileID(3), c.ID)

	_, err = Open(Options{Store: store, Geometry: Geometry{TotalBlocks: 20, BlockSize: 1024}})
	assert.ErrorIs(t, err, ErrGeometryMismatch)
}

func TestRejectWhenBusy(t *testing.T) {
	e := newTestEngine(t, 10, func(o *Options) { o.RejectWhenBusy = true })

	e.writeMu.Lock()
	_, err := e.Upload("a", kb(1), Linked)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, e.Delete(1), ErrBusy)
	_, err = e.Defragment()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Optimize()
	assert.ErrorIs(t, err, ErrBusy)
	e.writeMu.Unlock()

	_, err = e.Upload("a", kb(1), Linked)
	assert.NoError(t, err)
}

func TestRejectWhenBusyIgnoresReaders(t *testing.T) {
	e := newTestEngine(t, 10, func(o *Options) { o.RejectWhenBusy = true })

	// A reader in flight delays the swap but must not reject the writer
	e.mu.RLock()
	done := make(chan error, 1)
	go func() {
		_, err := e.Upload("a", kb(1), Linked)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	e.mu.RUnlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	assert.Len(t, e.ListFiles(), 1)

	// Concurrent reads while a mutation runs
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.Stats()
				e.ListBlocks()
			}
		}()
	}
	_, err := e.Upload("b", kb(2), Contiguous)
	wg.Wait()
	require.NoError(t, err)
}

func TestConcurrentWritersQueue(t *testing.T) {
	e := newTestEngine(t, 200)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Upload("f", kb(3), Linked)
			assert.NoError(t, err)
			_ = e.ListBlocks()
			_ = e.Fragmentation()
		}()
	}
	wg.Wait()

	assert.Len(t, e.ListFiles(), 20)
	assert.Equal(t, 140, e.Stats().FreeBlocks)
	require.NoError(t, e.Check())
}

func TestResetAndCompress(t *testing.T) {
	e := newTestEngine(t, 400)

	big, err := e.Upload("movie.bin", kb(201), Linked)
	require.NoError(t, err)
	recs := e.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, SuggestCompress, recs[0].Suggestion)

	view, err := e.SetCompressed(big.ID, true)
	require.NoError(t, err)
	assert.True(t, view.IsCompressed)
	assert.Empty(t, e.Recommendations())
	assert.Equal(t, "Marked file 1 compressed", e.AuditLog(1)[0].Action)

	_, err = e.SetCompressed(42, true)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.Reset())
	assert.Empty(t, e.ListFiles())
	assert.Equal(t, 400, e.Stats().FreeBlocks)

	log := e.AuditLog(0)
	assert.Equal(t, "System initialized (reset)", log[0].Action)
	assert.Equal(t, "Disk created", log[len(log)-1].Action, "reset keeps history")
}

func TestAuditLogOrder(t *testing.T) {
	e := newTestEngine(t, 10)
	_, err := e.Upload("a.txt", kb(1), Contiguous)
	require.NoError(t, err)
	require.NoError(t, e.Delete(1))

	log := e.AuditLog(0)
	require.Len(t, log, 3)
	assert.Equal(t, "Deleted file with id 1", log[0].Action)
	assert.Equal(t, "Uploaded file 'a.txt' using contiguous allocation.", log[1].Action)
	assert.Equal(t, testEpoch, log[0].Timestamp)

	assert.Len(t, e.AuditLog(2), 2)
	assert.Len(t, e.AuditLog(50), 3)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, 10)
	_, _ = e.Upload("a", kb(2), Contiguous)
	_, _ = e.Upload("b", kb(2), Contiguous)
	require.NoError(t, e.Delete(1))

	stats := e.Stats()
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.UsedBlocks)
	assert.Equal(t, 8, stats.FreeBlocks)
	assert.Equal(t, 2, stats.FreeRuns)
	assert.Equal(t, 6, stats.LargestFreeRun)
	assert.InDelta(t, 25.0, stats.Fragmentation, 1e-9)
}

func TestScanThroughEngine(t *testing.T) {
	e := newTestEngine(t, 10)
	for _, name := range []string{"a.txt", "a.txt", "b.txt", "x.tmp", "x.txt"} {
		_, err := e.Upload(name, kb(1), Contiguous)
		require.NoError(t, err)
	}

	report := e.Scan()
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, FileID(2), report.Duplicates[0].File.ID)
	assert.Equal(t, "a.txt", report.Duplicates[0].Canonical.Filename)
	require.Len(t, report.Junk, 1)
	assert.Equal(t, "x.tmp", report.Junk[0].Filename)
}

// TestRandomOperations drives random uploads, deletes and compactions and
// checks the ownership invariants after every step
func TestRandomOperations(t *testing.T) {
	const blocks = 64
	rng := rand.New(rand.NewSource(7))
	e := newTestEngine(t, blocks)
	types := []AllocationType{Contiguous, Linked, Indexed}

	for step := 0; step < 500; step++ {
		files := e.ListFiles()
		switch op := rng.Intn(10); {
		case op < 6 || len(files) == 0:
			_, err := e.Upload("f", kb(1+rng.Intn(8)), types[rng.Intn(len(types))])
			if err != nil {
				require.True(t, errors.Is(err, ErrInsufficientSpace) ||
					errors.Is(err, ErrInsufficientContiguousSpace), "step %d: %v", step, err)
			}
		case op < 9:
			require.NoError(t, e.Delete(files[rng.Intn(len(files))].ID))
		default:
			_, err := e.Defragment()
			require.NoError(t, err)
			assert.Zero(t, e.Fragmentation())
		}

		used := 0
		owner := make(map[int]FileID)
		for _, f := range e.ListFiles() {
			used += f.BlocksCount
			for _, b := range blocksOf(t, e, f.ID) {
				prev, taken := owner[b]
				require.False(t, taken, "step %d: block %d owned by %d and %d", step, b, prev, f.ID)
				owner[b] = f.ID
			}
		}
		require.Equal(t, blocks, used+e.Stats().FreeBlocks, "step %d", step)
		require.NoError(t, e.Check(), "step %d", step)
	}
}
