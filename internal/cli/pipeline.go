package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	loader "github.com/coyt0001/hcrecalls-dynamodb-loader"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/logging"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/markup"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/recalls"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/staging"
	"github.com/coyt0001/hcrecalls-dynamodb-loader/internal/uid"
)

// ErrCategoriesFailed is returned when at least one category did not finish.
var ErrCategoriesFailed = errors.New("one or more categories failed")

// step is one pipeline stage applied to a single category.
type step func(ctx context.Context, c recalls.Category, res *result) error

// result is what happened to one category.
type result struct {
	Category recalls.Category
	Stage    string
	Records  int
	Outcome  *loader.Outcome
	Err      error
}

func (r result) String() string {
	if r.Err != nil {
		code := loader.CodeOf(r.Err)
		if code == "" {
			code = "Error"
		}
		return fmt.Sprintf("%-18s failed in %s [%s]: %v", r.Category, r.Stage, code, r.Err)
	}
	if r.Outcome == nil {
		return fmt.Sprintf("%-18s %s: %d records", r.Category, r.Stage, r.Records)
	}
	o := r.Outcome
	s := fmt.Sprintf("%-18s %s: %d records, %d accepted, %d rejected, %d waves",
		r.Category, o.Kind, r.Records, o.Accepted(), len(o.Rejected), len(o.Waves))
	if o.DebugPath != "" {
		s += ", request written to " + o.DebugPath
	}
	return s
}

// forEach runs steps for every category in turn. A failing category is
// logged and the loop moves on; cancellation stops the loop.
func (a *app) forEach(ctx context.Context, out io.Writer, cats []recalls.Category, steps ...step) error {
	var results []result
	for _, c := range cats {
		res := result{Category: c}
		for _, s := range steps {
			if res.Err = s(ctx, c, &res); res.Err != nil {
				break
			}
		}
		results = append(results, res)
		if res.Err != nil {
			a.log.Error().Err(res.Err).
				Str("category", c.String()).
				Str("stage", res.Stage).
				Str("code", string(loader.CodeOf(res.Err))).
				Msg("category abandoned")
			if stopsRun(ctx, res.Err) {
				break
			}
		}
	}

	failed := 0
	for _, r := range results {
		fmt.Fprintln(out, r)
		if r.Err != nil {
			failed++
		}
	}
	if skipped := len(cats) - len(results); skipped > 0 {
		fmt.Fprintf(out, "%d categories not attempted\n", skipped)
		failed += skipped
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrCategoriesFailed, failed, len(cats))
	}
	return nil
}

func stopsRun(ctx context.Context, err error) bool {
	return ctx.Err() != nil || loader.IsCode(err, loader.ErrCancelled) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (a *app) store() *staging.Store { return staging.New(a.cfg.DataDir) }

// fetchStep pulls the listing and the details of every entry.
func (a *app) fetchStep(ctx context.Context, c recalls.Category, res *result) error {
	res.Stage = "fetch"
	f := a.fetcher()
	listing, err := f.Recent(ctx, c)
	if err != nil {
		return err
	}
	if _, err := a.store().Save(int(c), staging.Listing, listing); err != nil {
		return err
	}
	detailed, err := f.Details(ctx, listing)
	if err != nil {
		return err
	}
	if _, err := a.store().Save(int(c), staging.Detailed, detailed); err != nil {
		return err
	}
	res.Records = len(detailed)
	a.log.Info().Str("category", c.String()).Int("listed", len(listing)).Int("fetched", len(detailed)).Msg("recalls fetched")
	return nil
}

// cleanStep strips markup from the detailed stage.
func (a *app) cleanStep(_ context.Context, c recalls.Category, res *result) error {
	res.Stage = "clean"
	detailed, err := a.store().Load(int(c), staging.Detailed)
	if err != nil {
		return err
	}
	stripped := make([]map[string]any, len(detailed))
	for i, rec := range detailed {
		stripped[i] = markup.Strip(rec).(map[string]any)
	}
	if _, err := a.store().Save(int(c), staging.Stripped, stripped); err != nil {
		return err
	}
	res.Records = len(stripped)
	a.log.Info().Str("category", c.String()).Int("records", len(stripped)).Msg("markup stripped")
	return nil
}

// uploadStep loads the stripped stage into the table.
func (a *app) uploadStep(dryRun, assumeYes bool) step {
	return func(ctx context.Context, c recalls.Category, res *result) error {
		res.Stage = "upload"
		stripped, err := a.store().Load(int(c), staging.Stripped)
		if err != nil {
			return err
		}
		records := make([]loader.Record, len(stripped))
		for i, m := range stripped {
			records[i] = loader.Record(m)
		}
		res.Records = len(records)

		client, err := a.deps.NewClient(ctx, a.cfg.AWS)
		if err != nil {
			return loader.NewError("Cannot create DynamoDB client", loader.WithCode(loader.ErrRuntime), loader.WithCause(err))
		}
		l := logging.Loader(a.base)
		table, err := loader.NewTable(loader.TableParams{Spec: a.cfg.Table, Client: client, Logger: l})
		if err != nil {
			return err
		}

		var confirm loader.ConfirmationProvider = a.prompt
		if assumeYes {
			confirm = loader.ConfirmFunc(yes)
		}
		u := loader.NewUploader(table,
			loader.WithCategory(categoryTag(c)),
			loader.WithPacing(a.cfg.Upload.Pacing),
			loader.WithMaxWaves(a.cfg.Upload.MaxWaves),
			loader.WithTableWait(a.cfg.Upload.TableWait),
			loader.WithConfirmation(confirm),
			loader.WithProgress(a.deps.Progress(a.progressOut)),
			loader.WithDebugDir(a.cfg.DataDir),
			loader.WithLogger(l),
		)
		out, err := u.Run(ctx, records, dryRun)
		res.Outcome = out
		if err != nil {
			return err
		}
		a.logOutcome(c, out)
		return nil
	}
}

func (a *app) logOutcome(c recalls.Category, o *loader.Outcome) {
	var ev *zerolog.Event
	switch o.Kind {
	case loader.OutcomeAborted, loader.OutcomeTableCreationPending:
		ev = a.log.Warn()
	default:
		ev = a.log.Info()
	}
	if started, err := uid.Time(o.Session); err == nil {
		ev = ev.Dur("elapsed", time.Since(started))
	}
	ev.Str("category", c.String()).
		Str("outcome", string(o.Kind)).
		Str("upload_session", o.Session).
		Int("accepted", o.Accepted()).
		Int("rejected", len(o.Rejected)).
		Msg("upload finished")
}
