package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/testsupport"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newJob(t *testing.T, id, activityID string, at time.Time) *job.Job {
	t.Helper()
	j, err := job.New(job.Identity{
		ID:          id,
		ActivityID:  activityID,
		RequestorID: "0xrequestor",
		Price: job.Price{
			UsageVector:  []string{"golem.usage.duration_sec"},
			Coefficients: []decimal.Decimal{decimal.RequireFromString("0.001")},
			Fixed:        decimal.RequireFromString("0.5"),
		},
	}, at)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func TestSaveAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	j := newJob(t, "agr-1", "act-1", base).Advance(job.Computing, base.Add(time.Second))
	j = j.WithUsage([]float64{100}, base.Add(2*time.Second))
	if err := store.Save(ctx, j.Snapshot(), "run-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := store.Get(ctx, "agr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Job.Status != job.Computing {
		t.Fatalf("status = %v, want computing", rec.Job.Status)
	}
	if !rec.Job.Reward.Equal(decimal.RequireFromString("0.6")) {
		t.Fatalf("reward = %s, want 0.6", rec.Job.Reward)
	}
	if rec.RunID != "run-a" {
		t.Fatalf("run id = %q, want run-a", rec.RunID)
	}
	if rec.Finished() {
		t.Fatal("fresh job reported finished")
	}
}

func TestSaveKeepsFirstRunID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	j := newJob(t, "agr-1", "act-1", base)
	if err := store.Save(ctx, j.Snapshot(), "run-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, j.Advance(job.DownloadingModel, base.Add(time.Second)).Snapshot(), "run-b"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := store.Get(ctx, "agr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RunID != "run-a" {
		t.Fatalf("run id = %q, want run-a", rec.RunID)
	}
	if rec.Job.Status != job.DownloadingModel {
		t.Fatalf("status = %v, want downloading model", rec.Job.Status)
	}
}

func TestFinishKeepsFirstTime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if err := store.Save(ctx, newJob(t, "agr-1", "act-1", base).Snapshot(), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first := base.Add(time.Minute)
	if err := store.Finish(ctx, "agr-1", first); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.Finish(ctx, "agr-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	rec, err := store.Get(ctx, "agr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(first) {
		t.Fatalf("finished at = %v, want %v", rec.FinishedAt, first)
	}

	// A later save of the same job does not reopen it.
	if err := store.Save(ctx, newJob(t, "agr-1", "act-1", base).Snapshot(), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, _ = store.Get(ctx, "agr-1")
	if !rec.Finished() {
		t.Fatal("save cleared finished_at")
	}
}

func TestFinishUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	err := store.Finish(context.Background(), "missing", base)
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Finish error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestFinishDangling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"agr-1", "agr-2", "agr-3"} {
		if err := store.Save(ctx, newJob(t, id, "act-"+id, base).Snapshot(), ""); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	if err := store.Finish(ctx, "agr-1", base); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	n, err := store.FinishDangling(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("FinishDangling: %v", err)
	}
	if n != 2 {
		t.Fatalf("finished %d jobs, want 2", n)
	}
	rec, _ := store.Get(ctx, "agr-1")
	if !rec.FinishedAt.Equal(base) {
		t.Fatalf("already finished job restamped: %v", rec.FinishedAt)
	}
}

func TestListNewestFirstSince(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	for i, id := range []string{"agr-1", "agr-2", "agr-3"} {
		at := base.Add(time.Duration(i) * time.Hour)
		if err := store.Save(ctx, newJob(t, id, "act-"+id, at).Snapshot(), ""); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	all, err := store.List(ctx, time.Time{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Job.ID != "agr-3" || all[2].Job.ID != "agr-1" {
		t.Fatalf("unexpected order: %+v", ids(all))
	}

	recent, err := store.List(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if got := ids(recent); len(got) != 2 || got[0] != "agr-3" || got[1] != "agr-2" {
		t.Fatalf("since filter = %v, want [agr-3 agr-2]", got)
	}
}

func TestUpdateAndFindByActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	if err := store.Save(ctx, newJob(t, "agr-1", "act-1", base).Snapshot(), "run-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	changed, err := store.Update(ctx, "agr-1", func(j *job.Job) *job.Job {
		return j.WithPaymentStatus(job.PaymentStatus{
			State:     job.PaymentAccepted,
			InvoiceID: "inv-1",
			Amount:    decimal.RequireFromString("0.6"),
			UpdatedAt: base.Add(time.Minute),
		})
	})
	if err != nil || !changed {
		t.Fatalf("Update = %v, %v; want changed", changed, err)
	}

	unchanged, err := store.Update(ctx, "agr-1", func(j *job.Job) *job.Job { return j })
	if err != nil || unchanged {
		t.Fatalf("identity Update = %v, %v; want unchanged", unchanged, err)
	}

	rec, err := store.FindByActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("FindByActivity: %v", err)
	}
	if rec.Job.PaymentStatus == nil || rec.Job.PaymentStatus.State != job.PaymentAccepted {
		t.Fatalf("payment status = %+v, want accepted", rec.Job.PaymentStatus)
	}
	if rec.RunID != "run-a" {
		t.Fatalf("run id = %q, want run-a", rec.RunID)
	}

	if _, err := store.FindByActivity(ctx, "act-unknown"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("FindByActivity error = %v, want ErrNotFound", err)
	}
	if _, err := store.Update(ctx, "missing", func(j *job.Job) *job.Job { return j }); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Save(context.Background(), newJob(t, "agr-1", "act-1", base).Snapshot(), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), "agr-1"); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := history.OpenPath(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("OpenPath error = %v, want ErrSchemaMismatch", err)
	}
}

func ids(recs []history.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Job.ID)
	}
	return out
}
