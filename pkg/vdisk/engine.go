// file: pkg/vdisk/engine.go

package vdisk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures an Engine
type Options struct {
	// Geometry of a new disk. When zero, a stored disk keeps its own
	// geometry and a new one gets DefaultGeometry.
	Geometry Geometry
	// JunkExtensions defaults to DefaultJunkExtensions
	JunkExtensions []string
	// CompressThresholdKB defaults to DefaultCompressThresholdKB
	CompressThresholdKB int
	// RejectWhenBusy makes a mutation fail with ErrBusy instead of waiting
	// for the one in progress
	RejectWhenBusy bool
	// Store persists the disk; nil keeps it in memory only
	Store  Persister
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Engine owns one virtual disk: its block table and file registry. All
// mutations are serialized and applied atomically; reads see either the
// state before a mutation or the state after it.
type Engine struct {
	// writeMu serializes mutations. mu guards st and audit for readers and
	// is held for writing only while a committed state is swapped in.
	writeMu sync.Mutex
	mu      sync.RWMutex
	st      *state

	geom                Geometry
	junk                JunkSet
	compressThresholdKB int
	rejectWhenBusy      bool
	store               Persister
	audit               []AuditEvent
	log                 zerolog.Logger
	now                 func() time.Time
}

// Open creates an engine. If the store holds a disk it is restored,
// otherwise a fresh disk is created and persisted.
func Open(opts Options) (*Engine, error) {
	e := &Engine{
		junk:                NewJunkSet(opts.JunkExtensions),
		compressThresholdKB: opts.CompressThresholdKB,
		rejectWhenBusy:      opts.RejectWhenBusy,
		store:               opts.Store,
		log:                 zerolog.Nop(),
		now:                 opts.Now,
	}
	if opts.JunkExtensions == nil {
		e.junk = NewJunkSet(DefaultJunkExtensions)
	}
	if e.compressThresholdKB <= 0 {
		e.compressThresholdKB = DefaultCompressThresholdKB
	}
	if opts.Logger != nil {
		e.log = opts.Logger.With().Str("component", "vdisk").Logger()
	}
	if e.now == nil {
		e.now = time.Now
	}

	if !opts.Geometry.IsZero() {
		if err := opts.Geometry.Validate(); err != nil {
			return nil, err
		}
	}

	var snap *Snapshot
	if e.store != nil {
		var err error
		if snap, err = e.store.LoadSnapshot(); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}

	if snap != nil {
		if !opts.Geometry.IsZero() && opts.Geometry != snap.Geometry {
			return nil, fmt.Errorf("stored disk is %d x %d bytes, requested %d x %d bytes: %w",
				snap.Geometry.TotalBlocks, snap.Geometry.BlockSize,
				opts.Geometry.TotalBlocks, opts.Geometry.BlockSize, ErrGeometryMismatch)
		}
		if err := snap.Geometry.Validate(); err != nil {
			return nil, fmt.Errorf("stored geometry: %w", err)
		}
		st, err := restoreState(snap)
		if err != nil {
			return nil, err
		}
		e.geom = snap.Geometry
		e.st = st

		if loader, ok := e.store.(AuditLoader); ok {
			events, err := loader.LoadLog()
			if err != nil {
				return nil, fmt.Errorf("load audit log: %w", err)
			}
			e.audit = events
		}

		e.log.Info().
			Int("total_blocks", e.geom.TotalBlocks).
			Int("block_size", e.geom.BlockSize).
			Int("files", st.files.Len()).
			Msg("Disk restored")
		return e, nil
	}

	e.geom = opts.Geometry
	if e.geom.IsZero() {
		e.geom = DefaultGeometry()
	}
	e.st = newState(e.geom.TotalBlocks)

	if e.store != nil {
		if err := e.store.PersistSnapshot(e.st.snapshot(e.geom, e.now())); err != nil {
			return nil, fmt.Errorf("persist new disk: %w", err)
		}
	}
	e.record("Disk created")

	e.log.Info().
		Int("total_blocks", e.geom.TotalBlocks).
		Int("block_size", e.geom.BlockSize).
		Msg("Disk created")
	return e, nil
}

// Geometry returns the fixed shape of the disk
func (e *Engine) Geometry() Geometry {
	return e.geom
}

// lock takes the mutation permit. Readers never hold it, so only another
// mutation in progress makes a RejectWhenBusy engine refuse.
func (e *Engine) lock(op string) error {
	if !e.rejectWhenBusy {
		e.writeMu.Lock()
		return nil
	}
	if !e.writeMu.TryLock() {
		e.log.Warn().Str("operation", op).Msg("Rejected mutation while busy")
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	return nil
}

// unlock releases the mutation permit
func (e *Engine) unlock() {
	e.writeMu.Unlock()
}

// commit checks and persists next, then makes it the live state. The
// caller holds the mutation permit. On error the live state is untouched.
func (e *Engine) commit(next *state, action string) error {
	if err := checkState(next); err != nil {
		e.log.Error().Err(err).Str("action", action).Msg("Refusing inconsistent disk state")
		return err
	}
	if e.store != nil {
		if err := e.store.PersistSnapshot(next.snapshot(e.geom, e.now())); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}
	}

	e.publish(next, action)
	return nil
}

// record appends to the journal without changing the disk
func (e *Engine) record(action string) {
	e.publish(nil, action)
}

// publish swaps in next, when given, together with its journal entry so
// readers never see one without the other. A failed store append is logged
// and does not undo the committed mutation.
func (e *Engine) publish(next *state, action string) {
	event := AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: e.now().UTC(),
		Action:    action,
	}

	e.mu.Lock()
	if next != nil {
		e.st = next
	}
	e.audit = append(e.audit, event)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.AppendLog(event); err != nil {
			e.log.Warn().Err(err).Str("action", action).Msg("Failed to append audit event")
		}
	}
}

// AuditLog returns up to limit events, newest first. limit <= 0 returns all.
func (e *Engine) AuditLog(limit int) []AuditEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]AuditEvent, 0, n)
	for i := len(e.audit) - 1; i >= 0 && len(events) < n; i-- {
		events = append(events, e.audit[i])
	}
	return events
}
