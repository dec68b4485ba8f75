// Package ledger is a pluggable-backend run-history audit log: a record
// of what each mirror invocation did. Backend selection and connection
// wiring live in kvstore, not here — ledger only knows how to turn a
// kv.Store into a log of Run records.
//
// This is new scope the distilled spec didn't carry: a mirror that is
// re-run nightly benefits from the same kind of audit trail depot keeps
// for uploads and downloads. It is not a lockfile and never gates what
// the orchestrator fetches — the Range Cache and Meta Cache remain
// strictly in-memory and per-process, as §3 requires.
package ledger

import (
	"context"
	"net/url"
	"path"
	"time"

	"github.com/a-h/kv"
	"github.com/a-h/npmmirror/kvstore"
)

// New opens a kv.Store backend for the ledger to record into.
func New(ctx context.Context, dbType, dsn string) (store kv.Store, closer func() error, err error) {
	return kvstore.Open(ctx, dbType, dsn)
}

// PhaseTotals is the per-phase {total,success,skipped,failed} summary
// recorded for one completed phase of a run.
type PhaseTotals struct {
	FilesTotal, FilesSuccess, FilesSkipped, FilesFailed int64
	BytesSuccess                                        int64
}

// Run is one mirror invocation's audit record.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	RegistryURL string
	Greedy      bool
	Phase1      PhaseTotals
	Phase2      PhaseTotals
	Phase3      PhaseTotals
	Err         string // empty on success
}

// Ledger records run history into a kv.Store.
type Ledger struct {
	store kv.Store
}

// NewLedger constructs a Ledger over an already-opened kv.Store.
func NewLedger(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

func runKey(id string) string {
	return path.Join("/npmmirror/runs", url.PathEscape(id))
}

// Record writes run unconditionally (last write wins; run IDs are unique
// per invocation so this never races in practice).
func (l *Ledger) Record(ctx context.Context, run Run) error {
	return l.store.Put(ctx, runKey(run.ID), -1, run)
}

// Get retrieves a previously recorded run by ID.
func (l *Ledger) Get(ctx context.Context, id string) (Run, bool, error) {
	var run Run
	_, ok, err := l.store.Get(ctx, runKey(id), &run)
	if err != nil {
		return Run{}, false, err
	}
	return run, ok, nil
}

// Recent returns up to limit recorded runs, as the store's prefix query
// lists them under their run-ID keys; the runs are not sorted by time.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	records, err := l.store.GetPrefix(ctx, path.Join("/npmmirror/runs")+"/", 0, limit)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[Run](records)
}
