// file: pkg/vdisk/state.go

package vdisk

import (
	"fmt"
	"slices"
	"time"
)

// state is everything a mutation changes. Mutations work on a clone and the
// engine swaps the clone in once it has been checked and persisted.
type state struct {
	table  *BlockTable
	files  *FileRegistry
	nextID FileID
}

func newState(totalBlocks int) *state {
	return &state{
		table:  NewBlockTable(totalBlocks),
		files:  NewFileRegistry(),
		nextID: 1,
	}
}

func (s *state) clone() *state {
	return &state{
		table:  s.table.clone(),
		files:  s.files.clone(),
		nextID: s.nextID,
	}
}

// Persister is the storage collaborator behind an Engine. LoadSnapshot
// returns nil, nil when nothing has been stored yet.
type Persister interface {
	PersistSnapshot(snap *Snapshot) error
	LoadSnapshot() (*Snapshot, error)
	AppendLog(event AuditEvent) error
}

// Snapshot is the persisted form of the disk
type Snapshot struct {
	Geometry Geometry
	Files    []File   // ascending ID
	Owners   []FileID // owner of every block, NoFile when free
	NextID   FileID
	TakenAt  time.Time
}

func (s *state) snapshot(g Geometry, now time.Time) *Snapshot {
	snap := &Snapshot{
		Geometry: g,
		Files:    make([]File, 0, s.files.Len()),
		Owners:   s.table.Owners(),
		NextID:   s.nextID,
		TakenAt:  now,
	}
	for _, f := range s.files.All() {
		snap.Files = append(snap.Files, *f.clone())
	}
	return snap
}

// restoreState rebuilds a state from a snapshot. Owners are taken as stored
// so that orphaned blocks survive a restart and can be reclaimed later.
func restoreState(snap *Snapshot) (*state, error) {
	if len(snap.Owners) != snap.Geometry.TotalBlocks {
		return nil, fmt.Errorf("snapshot has %d block owners for %d blocks: %w",
			len(snap.Owners), snap.Geometry.TotalBlocks, ErrInconsistent)
	}

	st := &state{
		table:  &BlockTable{owners: slices.Clone(snap.Owners)},
		files:  NewFileRegistry(),
		nextID: snap.NextID,
	}
	for i := range snap.Files {
		f := snap.Files[i].clone()
		if err := st.files.Insert(f); err != nil {
			return nil, fmt.Errorf("restore file %d: %w", f.ID, err)
		}
		if f.ID >= st.nextID {
			st.nextID = f.ID + 1
		}
	}
	if st.nextID < 1 {
		st.nextID = 1
	}

	if err := checkState(st); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	return st, nil
}
