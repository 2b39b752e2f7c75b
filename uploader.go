/*
Package loader – upload engine.

An Uploader loads one record set into its Table: it maps the records, splits
them into BatchWriteItem-sized chunks, submits the chunks one after another and
re-drives whatever DynamoDB left unprocessed as a new retry wave.
*/
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/uid"
)

// Upload defaults.
const (
	DefaultPacing    = 1500 * time.Millisecond
	DefaultMaxWaves  = 8
	DefaultTableWait = 5 * time.Minute
	DefaultCategory  = "recalls"
)

// OutcomeKind says how a Run ended without error.
type OutcomeKind string

const (
	OutcomeUploadComplete       OutcomeKind = "UploadComplete"
	OutcomeDryRunComplete       OutcomeKind = "DryRunComplete"
	OutcomeTableCreationPending OutcomeKind = "TableCreationPending"
	OutcomeAborted              OutcomeKind = "Aborted"
)

// WaveResult is the tally of one retry wave.
type WaveResult struct {
	Wave        int `json:"wave"`
	Requests    int `json:"requests"`
	Submitted   int `json:"submitted"`
	Unprocessed int `json:"unprocessed"`
}

// Outcome describes a Run. It is returned even when Run fails, holding the
// waves that completed before the failure.
type Outcome struct {
	Kind      OutcomeKind      `json:"kind"`
	Category  string           `json:"category"`
	Session   string           `json:"session"`
	Waves     []WaveResult     `json:"waves,omitempty"`
	Rejected  []MappingFailure `json:"-"`
	DebugPath string           `json:"debugPath,omitempty"`
}

// Accepted is the number of items DynamoDB confirmed across all waves.
func (o *Outcome) Accepted() int {
	n := 0
	for _, w := range o.Waves {
		n += w.Submitted - w.Unprocessed
	}
	return n
}

// ConfirmationProvider asks the operator to approve an action.
type ConfirmationProvider interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a plain function to ConfirmationProvider.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// ProgressReporter shows a status line while chunks are in flight. It must
// not influence the upload.
type ProgressReporter interface {
	Start(label string, total int)
	Advance(n int)
	Stop()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Advance(int)       {}
func (nopProgress) Stop()             {}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithCategory tags logs and the dry-run artifact.
func WithCategory(category string) UploaderOption {
	return func(u *Uploader) { u.category = category }
}

// WithPacing sets the delay between consecutive chunk submissions.
func WithPacing(d time.Duration) UploaderOption {
	return func(u *Uploader) { u.pacing = d }
}

// WithMaxWaves caps the number of waves, the first one included.
func WithMaxWaves(n int) UploaderOption {
	return func(u *Uploader) { u.maxWaves = n }
}

// WithWaveBackOff sets the policy for the pause before each retry wave.
// newBackOff is called once per Run.
func WithWaveBackOff(newBackOff func() backoff.BackOff) UploaderOption {
	return func(u *Uploader) { u.newBackOff = newBackOff }
}

// WithTableWait sets how long to wait for a newly created table to become
// active. Zero skips the wait and ends the Run with OutcomeTableCreationPending.
func WithTableWait(d time.Duration) UploaderOption {
	return func(u *Uploader) { u.tableWait = d }
}

// WithConfirmation sets who approves table creation. Without one, a missing
// table aborts the Run.
func WithConfirmation(c ConfirmationProvider) UploaderOption {
	return func(u *Uploader) { u.confirm = c }
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) UploaderOption {
	return func(u *Uploader) { u.progress = p }
}

// WithDebugDir sets where dry-run artifacts are written.
func WithDebugDir(dir string) UploaderOption {
	return func(u *Uploader) { u.debugDir = dir }
}

// WithLogger sets the logger; the Table's logger is used otherwise.
func WithLogger(l Logger) UploaderOption {
	return func(u *Uploader) { u.log = l }
}

// Uploader is the upload engine bound to one table.
type Uploader struct {
	table *Table

	category   string
	pacing     time.Duration
	maxWaves   int
	newBackOff func() backoff.BackOff
	tableWait  time.Duration
	confirm    ConfirmationProvider
	progress   ProgressReporter
	debugDir   string
	log        Logger
}

// NewUploader creates an Uploader for table.
func NewUploader(table *Table, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		table:      table,
		category:   DefaultCategory,
		pacing:     DefaultPacing,
		maxWaves:   DefaultMaxWaves,
		newBackOff: DefaultWaveBackOff,
		tableWait:  DefaultTableWait,
		progress:   nopProgress{},
		log:        table.log,
	}
	for _, o := range opts {
		o(u)
	}
	if u.maxWaves < 1 {
		u.maxWaves = 1
	}
	if u.progress == nil {
		u.progress = nopProgress{}
	}
	u.log = orNop(u.log)
	return u
}

// DefaultWaveBackOff grows the pause between retry waves from 500ms to 10s.
func DefaultWaveBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run loads records into the table. With dryRun the requests are written to
// the debug artifact instead of being submitted, and a missing table is only
// logged, never created. Retry waves are never dry.
func (u *Uploader) Run(ctx context.Context, records []Record, dryRun bool) (*Outcome, error) {
	out := &Outcome{Category: u.category, Session: uid.New()}
	logCtx := map[string]any{"category": u.category, "table": u.table.Name, "upload_session": out.Session}
	u.log.Info("Upload session started", merge(logCtx, map[string]any{"records": len(records), "dryRun": dryRun}))

	kind, err := u.ensureTable(ctx, dryRun)
	if err != nil {
		return out, err
	}
	if kind != "" {
		out.Kind = kind
		u.log.Info("Upload session ended before submission", merge(logCtx, map[string]any{"outcome": kind}))
		return out, nil
	}

	items, rejected := MapRecords(records, u.table.Key)
	out.Rejected = rejected
	for _, f := range rejected {
		u.log.Error("Record left out of upload", merge(logCtx, map[string]any{
			"index": f.Index, "key": f.Key, "error": f.Err.Error(),
		}))
	}
	batches := Partition(items, MaxBatchWriteItems)

	if dryRun {
		path, err := writeDebugArtifact(u.debugDir, u.category, u.table.Name, batches)
		if err != nil {
			return out, NewError("Cannot write debug artifact", WithCode(ErrRuntime), WithCause(err))
		}
		out.Kind = OutcomeDryRunComplete
		out.DebugPath = path
		u.log.Info("Dry run written", merge(logCtx, map[string]any{"path": path, "requests": len(batches)}))
		return out, nil
	}

	u.progress.Start(fmt.Sprintf("Uploading %s to %s", u.category, u.table.Name), len(items))
	defer u.progress.Stop()

	bo := backoff.WithContext(u.newBackOff(), ctx)
	bo.Reset()
	if err := u.wave(ctx, 1, batches, bo, out); err != nil {
		u.log.Error("Upload session failed", merge(logCtx, map[string]any{"error": err.Error(), "accepted": out.Accepted()}))
		return out, err
	}
	out.Kind = OutcomeUploadComplete
	u.log.Info("Upload session complete", merge(logCtx, map[string]any{"accepted": out.Accepted(), "waves": len(out.Waves)}))
	return out, nil
}

// ensureTable returns a non-empty kind when the Run has to stop before
// uploading. A dry run never creates the table.
func (u *Uploader) ensureTable(ctx context.Context, dryRun bool) (OutcomeKind, error) {
	exists, err := u.table.Exists(ctx)
	if err != nil {
		return "", err
	}
	if exists {
		return "", nil
	}
	u.log.Info("Table does not exist", map[string]any{"table": u.table.Name, "dryRun": dryRun})
	if dryRun {
		return "", nil
	}
	if u.confirm == nil {
		return OutcomeAborted, nil
	}
	ok, err := u.confirm.Confirm(ctx, fmt.Sprintf(`Table "%s" does not exist. Create it?`, u.table.Name))
	if err != nil {
		return "", NewError("Table creation not confirmed", WithCode(ErrTableMissing), WithCause(err))
	}
	if !ok {
		return OutcomeAborted, nil
	}
	if err := u.table.Create(ctx); err != nil {
		return "", err
	}
	if u.tableWait <= 0 {
		u.log.Info("Verify the table is active before uploading", map[string]any{"table": u.table.Name})
		return OutcomeTableCreationPending, nil
	}
	if err := u.table.WaitActive(ctx, u.tableWait); err != nil {
		return "", err
	}
	return "", nil
}

// wave submits batches and, when DynamoDB leaves items unprocessed, recurses
// into the next wave holding only those items.
func (u *Uploader) wave(ctx context.Context, n int, batches Batches[WireRecord], bo backoff.BackOff, out *Outcome) error {
	res, unprocessed, err := u.submit(ctx, n, batches)
	out.Waves = append(out.Waves, res)
	if err != nil {
		return err
	}
	if len(unprocessed) == 0 {
		return nil
	}
	u.log.Info("Items unprocessed, scheduling retry wave", map[string]any{
		"category": u.category, "wave": n, "unprocessed": len(unprocessed),
	})
	if n >= u.maxWaves {
		return NewError(fmt.Sprintf("%d items still unprocessed after %d waves", len(unprocessed), n),
			WithCode(ErrRetryExhausted), WithContext(map[string]any{"unprocessed": len(unprocessed), "waves": n}))
	}
	wait := bo.NextBackOff()
	if wait == backoff.Stop {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		return NewError(fmt.Sprintf("%d items still unprocessed, backoff gave up", len(unprocessed)),
			WithCode(ErrRetryExhausted), WithContext(map[string]any{"unprocessed": len(unprocessed), "waves": n}))
	}
	if err := sleepCtx(ctx, wait); err != nil {
		return cancelled(err)
	}
	return u.wave(ctx, n+1, Partition(unprocessed, MaxBatchWriteItems), bo, out)
}

// submit sends each chunk in order with the pacing delay between them. The
// first failing chunk ends the wave; later chunks are not attempted.
func (u *Uploader) submit(ctx context.Context, n int, batches Batches[WireRecord]) (WaveResult, []WireRecord, error) {
	res := WaveResult{Wave: n}
	var unprocessed []WireRecord
	for i, chunk := range batches {
		if i > 0 {
			if err := sleepCtx(ctx, u.pacing); err != nil {
				return res, nil, cancelled(err)
			}
		} else if err := ctx.Err(); err != nil {
			return res, nil, cancelled(err)
		}
		left, err := u.table.BatchWrite(ctx, chunk)
		if err != nil {
			var le *LoaderError
			if errors.As(err, &le) {
				le.Context = merge(le.Context, map[string]any{"wave": n, "chunk": i})
			}
			return res, nil, err
		}
		res.Requests++
		res.Submitted += len(chunk)
		res.Unprocessed += len(left)
		unprocessed = append(unprocessed, left...)
		u.progress.Advance(len(chunk) - len(left))
	}
	return res, unprocessed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cancelled(err error) *LoaderError {
	return NewError("Upload cancelled", WithCode(ErrCancelled), WithCause(err))
}

func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
