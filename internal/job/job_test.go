package job_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/job"
)

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func testPrice() job.Price {
	return job.Price{
		UsageVector:  []string{job.UsageDuration, job.UsageGPU},
		Coefficients: []decimal.Decimal{decimal.RequireFromString("0.0001"), decimal.RequireFromString("0.001")},
		Fixed:        decimal.RequireFromString("0.5"),
	}
}

func newJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(job.Identity{ID: "agr-1", ActivityID: "act-1", RequestorID: "0xreq", Price: testPrice()}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestNewRequiresIdentity(t *testing.T) {
	for _, ident := range []job.Identity{{ID: "a"}, {RequestorID: "r"}, {ID: " ", RequestorID: "r"}} {
		if _, err := job.New(ident, t0); !errors.Is(err, job.ErrIncomplete) {
			t.Fatalf("identity %+v: expected ErrIncomplete, got %v", ident, err)
		}
	}
}

func TestNewJobStartsIdleWithFixedReward(t *testing.T) {
	j := newJob(t)
	if j.Status() != job.Idle {
		t.Fatalf("expected idle, got %s", j.Status())
	}
	if !j.Reward().Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected initial reward %s", j.Reward())
	}
}

func TestStatusOnlyMovesForward(t *testing.T) {
	j := newJob(t)
	computing := j.Advance(job.Computing, t0.Add(time.Second))
	if computing.Status() != job.Computing {
		t.Fatalf("expected computing, got %s", computing.Status())
	}
	if back := computing.Advance(job.DownloadingModel, t0.Add(2*time.Second)); back != computing {
		t.Fatal("out-of-order status must be a no-op")
	}
	if same := computing.Advance(job.Computing, t0.Add(3*time.Second)); same != computing {
		t.Fatal("repeated status must be a no-op")
	}
	if j.Status() != job.Idle {
		t.Fatal("transition mutated the original job")
	}
}

func TestUsageIsMonotonicAndRecomputesReward(t *testing.T) {
	j := newJob(t).WithUsage([]float64{100, 10}, t0)
	want := decimal.RequireFromString("0.5").
		Add(decimal.RequireFromString("0.0001").Mul(decimal.NewFromInt(100))).
		Add(decimal.RequireFromString("0.001").Mul(decimal.NewFromInt(10)))
	if !j.Reward().Equal(want) {
		t.Fatalf("reward %s want %s", j.Reward(), want)
	}

	lower := j.WithUsage([]float64{50, 5}, t0.Add(time.Second))
	if lower != j {
		t.Fatal("lower usage report must be a no-op")
	}
	mixed := j.WithUsage([]float64{200, 5}, t0.Add(time.Second))
	if got := mixed.Usage(); got[0] != 200 || got[1] != 10 {
		t.Fatalf("expected per-counter max, got %v", got)
	}
	if !mixed.Reward().GreaterThan(j.Reward()) {
		t.Fatal("reward should grow with usage")
	}
}

func TestPaymentStatusReplacedWholesale(t *testing.T) {
	j := newJob(t)
	sent := job.PaymentStatus{State: job.PaymentSent, InvoiceID: "inv-1", Amount: decimal.NewFromInt(1), UpdatedAt: t0}
	j1 := j.WithPaymentStatus(sent)
	if j1 == j {
		t.Fatal("expected new job after first payment status")
	}
	if j1.WithPaymentStatus(sent) != j1 {
		t.Fatal("identical payment status must be a no-op")
	}
	accepted := job.PaymentStatus{State: job.PaymentAccepted, InvoiceID: "inv-1", UpdatedAt: t0.Add(time.Minute)}
	j2 := j1.WithPaymentStatus(accepted)
	ps, ok := j2.PaymentStatus()
	if !ok || ps.State != job.PaymentAccepted || !ps.Amount.IsZero() {
		t.Fatalf("expected wholesale replacement, got %+v", ps)
	}
}

func TestPaymentsDeduplicatedByID(t *testing.T) {
	j := newJob(t)
	p1 := job.Payment{ID: "pay-1", Amount: decimal.NewFromInt(1), At: t0}
	p2 := job.Payment{ID: "pay-2", Amount: decimal.NewFromInt(2), At: t0}

	j1 := j.WithPayments(p1, p1, p2)
	if n := len(j1.Payments()); n != 2 {
		t.Fatalf("expected 2 payments, got %d", n)
	}
	if j1.WithPayments(p2, p1) != j1 {
		t.Fatal("replaying known payments must be a no-op")
	}
	if !j1.PaidTotal().Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected paid total %s", j1.PaidTotal())
	}
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	j := newJob(t).
		Advance(job.DownloadingModel, t0).
		WithUsage([]float64{10, 1}, t0).
		WithPayments(job.Payment{ID: "pay-1", Amount: decimal.NewFromInt(1), At: t0})

	data, err := json.Marshal(j.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap job.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := job.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if restored.Status() != job.DownloadingModel || !restored.Reward().Equal(j.Reward()) || len(restored.Payments()) != 1 {
		t.Fatalf("restored job differs: %+v", restored.Snapshot())
	}
	if !restored.Price().Equal(j.Price()) {
		t.Fatal("price changed across round trip")
	}
}

func TestTrackerPublishesOnlyChanges(t *testing.T) {
	tr := job.NewTracker()
	defer tr.Close()
	updates, cancel := tr.Subscribe(16)
	defer cancel()
	<-updates

	j := newJob(t)
	tr.Update(func(*job.Job) *job.Job { return j })
	if _, _, changed := tr.Update(func(cur *job.Job) *job.Job { return cur.Advance(job.Idle, t0) }); changed {
		t.Fatal("no-op update reported as change")
	}
	if tr.Current() != j {
		t.Fatal("current job not stored")
	}
	if cleared := tr.Clear(); cleared != j || tr.Current() != nil {
		t.Fatal("clear did not drop the job")
	}

	first := <-updates
	second := <-updates
	if first.Value != j || second.Value != nil || second.Seq != first.Seq+1 {
		t.Fatalf("unexpected updates %+v %+v", first, second)
	}
	select {
	case extra := <-updates:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestTrackerConcurrentReadersSeeWholeJobs(t *testing.T) {
	tr := job.NewTracker()
	defer tr.Close()
	tr.Update(func(*job.Job) *job.Job { return newJob(t) })

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			v := float64(i)
			tr.Update(func(cur *job.Job) *job.Job { return cur.WithUsage([]float64{v, v}, t0) })
		}
		close(stop)
	}()
	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		cur := tr.Current()
		u := cur.Usage()
		if len(u) == 2 && u[0] != u[1] {
			t.Fatalf("observed half-applied usage %v", u)
		}
		if !cur.Reward().Equal(cur.Price().Reward(u)) {
			t.Fatalf("reward out of sync with usage %v", u)
		}
	}
}

func TestCompareClassifiesChanges(t *testing.T) {
	first := newJob(t)
	if c := job.Compare(nil, first); c.Started != first || c.Finished != nil {
		t.Fatalf("new job: %+v", c)
	}
	if c := job.Compare(first, nil); c.Finished != first || c.Started != nil {
		t.Fatalf("cleared job: %+v", c)
	}

	advanced := first.Advance(job.Computing, t0.Add(time.Second))
	if c := job.Compare(first, advanced); !c.Advanced || c.Started != nil || c.Finished != nil {
		t.Fatalf("advanced job: %+v", c)
	}

	paid := advanced.
		WithPaymentStatus(job.PaymentStatus{State: job.PaymentSettled, InvoiceID: "inv-1", UpdatedAt: t0.Add(time.Minute)}).
		WithPayments(job.Payment{ID: "pay-1", Amount: decimal.RequireFromString("0.5"), At: t0.Add(time.Minute)})
	c := job.Compare(advanced, paid)
	if c.Advanced || c.PaymentState == nil || c.PaymentState.State != job.PaymentSettled {
		t.Fatalf("payment state change: %+v", c)
	}
	if len(c.Payments) != 1 || c.Payments[0].ID != "pay-1" {
		t.Fatalf("new payments = %+v", c.Payments)
	}
	if c := job.Compare(paid, paid); c.PaymentState != nil || len(c.Payments) != 0 || c.Advanced {
		t.Fatalf("identical job reported change: %+v", c)
	}

	other, err := job.New(job.Identity{ID: "agr-2", RequestorID: "0xreq"}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c := job.Compare(paid, other); c.Finished != paid || c.Started != other {
		t.Fatalf("replaced job: %+v", c)
	}
}
