// file: pkg/vdisk/operations.go

package vdisk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ha1tch/blockalloc/internal"
)

// Upload allocates blocks for content using the given strategy and
// registers the file. Either the file and all its blocks are created or
// nothing changes.
func (e *Engine) Upload(filename string, content []byte, allocType AllocationType) (FileView, error) {
	name, err := CleanFilename(filename)
	if err != nil {
		return FileView{}, err
	}
	if err := validateContent(content); err != nil {
		return FileView{}, err
	}
	strategy, err := StrategyFor(allocType)
	if err != nil {
		return FileView{}, err
	}

	sizeKB := internal.SizeKB(int64(len(content)))
	length := internal.BlocksNeeded(sizeKB, e.geom.BlockSizeKB())
	sum := sha256.Sum256(content)

	if err := e.lock("upload"); err != nil {
		return FileView{}, err
	}
	defer e.unlock()

	next := e.st.clone()
	id := next.nextID

	blocks, err := strategy.Allocate(next.table, length, id)
	if err != nil {
		e.log.Debug().Err(err).
			Str("filename", name).
			Str("allocation_type", allocType.String()).
			Int("blocks_needed", length).
			Msg("Allocation failed")
		return FileView{}, fmt.Errorf("upload %q: %w", name, err)
	}

	f := &File{
		ID:             id,
		Filename:       name,
		SizeBytes:      int64(len(content)),
		SizeKB:         sizeKB,
		AllocationType: allocType,
		Blocks:         blocks,
		CreatedAt:      e.now().UTC(),
		SHA256:         hex.EncodeToString(sum[:]),
	}
	if err := next.files.Insert(f); err != nil {
		return FileView{}, fmt.Errorf("upload %q: %w", name, err)
	}
	next.nextID++

	if err := e.commit(next, fmt.Sprintf("Uploaded file '%s' using %s allocation.", name, allocType)); err != nil {
		return FileView{}, fmt.Errorf("upload %q: %w", name, err)
	}

	e.log.Info().
		Int64("file_id", int64(id)).
		Str("filename", name).
		Str("allocation_type", allocType.String()).
		Ints("blocks", blocks).
		Msg("File uploaded")
	return f.View(), nil
}

// Delete frees every block of a file and removes its record
func (e *Engine) Delete(id FileID) error {
	if err := e.lock("delete"); err != nil {
		return err
	}
	defer e.unlock()

	next := e.st.clone()
	f, err := next.files.Remove(id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := next.table.Free(f.Blocks); err != nil {
		return fmt.Errorf("delete file %d: %w", id, err)
	}

	if err := e.commit(next, fmt.Sprintf("Deleted file with id %d", id)); err != nil {
		return fmt.Errorf("delete file %d: %w", id, err)
	}

	e.log.Info().
		Int64("file_id", int64(id)).
		Str("filename", f.Filename).
		Int("blocks_freed", f.BlocksCount()).
		Msg("File deleted")
	return nil
}

// Defragment compacts all files to the start of the disk. With no files it
// does nothing and reports NoOp.
func (e *Engine) Defragment() (DefragReport, error) {
	if err := e.lock("defragment"); err != nil {
		return DefragReport{}, err
	}
	defer e.unlock()

	next := e.st.clone()
	report, err := compact(next.table, next.files)
	if err != nil {
		return DefragReport{}, fmt.Errorf("defragment: %w", err)
	}

	if report.NoOp {
		e.record("Defragmentation skipped: no files")
		e.log.Warn().Msg("Defragmentation skipped: no files")
		return report, nil
	}

	if err := e.commit(next, "Defragmentation complete"); err != nil {
		return DefragReport{}, fmt.Errorf("defragment: %w", err)
	}

	e.log.Info().
		Int("files_relocated", report.FilesRelocated).
		Int("blocks_moved", report.BlocksMoved).
		Msg("Defragmentation complete")
	return report, nil
}

// Optimize runs the housekeeping scan, compaction and orphan reclamation
// as one atomic transition
func (e *Engine) Optimize() (OptimizeReport, error) {
	if err := e.lock("optimize"); err != nil {
		return OptimizeReport{}, err
	}
	defer e.unlock()

	next := e.st.clone()
	report, err := optimize(next, e.junk)
	if err != nil {
		return OptimizeReport{}, err
	}

	action := fmt.Sprintf("Optimization complete: %d duplicates, fragmentation %.2f%% -> %.2f%%",
		len(report.Duplicates), report.BeforeFragmentation, report.AfterFragmentation)
	if err := e.commit(next, action); err != nil {
		return OptimizeReport{}, fmt.Errorf("optimize: %w", err)
	}

	e.log.Info().
		Int("duplicates", len(report.Duplicates)).
		Int("junk", len(report.Junk)).
		Int("orphan_blocks", report.OrphanBlocks).
		Float64("before_fragmentation", report.BeforeFragmentation).
		Float64("after_fragmentation", report.AfterFragmentation).
		Msg("Optimization complete")
	return report, nil
}

// SetCompressed toggles the compression flag of a file
func (e *Engine) SetCompressed(id FileID, compressed bool) (FileView, error) {
	if err := e.lock("compress"); err != nil {
		return FileView{}, err
	}
	defer e.unlock()

	next := e.st.clone()
	f, ok := next.files.Get(id)
	if !ok {
		return FileView{}, fmt.Errorf("compress file %d: %w", id, ErrNotFound)
	}
	f.IsCompressed = compressed

	action := fmt.Sprintf("Marked file %d uncompressed", id)
	if compressed {
		action = fmt.Sprintf("Marked file %d compressed", id)
	}
	if err := e.commit(next, action); err != nil {
		return FileView{}, fmt.Errorf("compress file %d: %w", id, err)
	}
	return f.View(), nil
}

// Reset frees every block and forgets every file. IDs keep counting up
// from where they were and the audit history is kept.
func (e *Engine) Reset() error {
	if err := e.lock("reset"); err != nil {
		return err
	}
	defer e.unlock()

	next := e.st.clone()
	next.table.reset()
	next.files = NewFileRegistry()

	if err := e.commit(next, "System initialized (reset)"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	e.log.Info().Int("total_blocks", e.geom.TotalBlocks).Msg("Disk reset")
	return nil
}
