package activity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/activity"
	"yanode/internal/job"
	"yanode/internal/yagna"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAgreement() yagna.Agreement {
	return yagna.Agreement{
		ID:           "agr-1",
		RequestorID:  "0xreq",
		UsageVector:  []string{job.UsageDuration, job.UsageGPU},
		Coefficients: []decimal.Decimal{dec("0.001"), dec("0.01"), dec("0.5")},
	}
}

func newTestJob(t *testing.T, state yagna.ActivityState) *job.Job {
	t.Helper()
	j, err := activity.NewJob(yagna.Activity{ID: "act-1", State: state}, testAgreement(), nil, t0)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return j
}

func TestJobStatusMapping(t *testing.T) {
	tests := []struct {
		state  yagna.ActivityState
		want   job.Status
		wantOK bool
	}{
		{yagna.StateNew, job.Idle, true},
		{yagna.StateInitialized, job.DownloadingModel, true},
		{yagna.StateDeployed, job.DownloadingModel, true},
		{yagna.StateReady, job.Computing, true},
		{yagna.StateTerminated, job.Idle, false},
		{yagna.StateUnresponsive, job.Idle, false},
		{"", job.Idle, false},
	}
	for _, tt := range tests {
		got, ok := activity.JobStatus(tt.state)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("JobStatus(%q) = %v,%v want %v,%v", tt.state, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewJobUsesAgreementPricing(t *testing.T) {
	j := newTestJob(t, yagna.StateNew)
	if j.ID() != "agr-1" || j.ActivityID() != "act-1" || j.RequestorID() != "0xreq" {
		t.Fatalf("unexpected identity %s/%s/%s", j.ID(), j.ActivityID(), j.RequestorID())
	}
	price := j.Price()
	if !price.Fixed.Equal(dec("0.5")) || len(price.Coefficients) != 2 {
		t.Fatalf("unexpected price %+v", price)
	}
	if j.Status() != job.Idle {
		t.Fatalf("expected idle, got %v", j.Status())
	}
}

func TestNewJobRejectsIncompleteAgreement(t *testing.T) {
	_, err := activity.NewJob(yagna.Activity{ID: "act", State: yagna.StateNew}, yagna.Agreement{ID: "agr"}, nil, t0)
	if err == nil {
		t.Fatal("expected error for agreement without requestor")
	}
}

func TestApplyNeverRegresses(t *testing.T) {
	j := newTestJob(t, yagna.StateReady)
	if j.Status() != job.Computing {
		t.Fatalf("expected computing, got %v", j.Status())
	}
	next := activity.Apply(j, yagna.Activity{ID: "act-1", State: yagna.StateDeployed}, true, nil, t0.Add(time.Second))
	if next != j {
		t.Fatal("expected out-of-order snapshot to be a no-op")
	}
	if next.Status() != job.Computing {
		t.Fatalf("status regressed to %v", next.Status())
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	j := newTestJob(t, yagna.StateNew)
	act := yagna.Activity{ID: "act-1", State: yagna.StateDeployed}
	usage := []float64{10, 2}

	first := activity.Apply(j, act, true, usage, t0.Add(time.Second))
	if first == j {
		t.Fatal("expected first application to change the job")
	}
	second := activity.Apply(first, act, true, usage, t0.Add(2*time.Second))
	if second != first {
		t.Fatal("expected repeated snapshot to return the same job")
	}
	if want := dec("0.5").Add(dec("0.01")).Add(dec("0.02")); !first.Reward().Equal(want) {
		t.Fatalf("expected reward %s, got %s", want, first.Reward())
	}
}

func TestApplyClearsMissingOrTerminal(t *testing.T) {
	j := newTestJob(t, yagna.StateReady)
	if activity.Apply(j, yagna.Activity{}, false, nil, t0) != nil {
		t.Fatal("expected missing activity to clear the job")
	}
	if activity.Apply(j, yagna.Activity{ID: "act-1", State: yagna.StateTerminated}, true, nil, t0) != nil {
		t.Fatal("expected terminated activity to clear the job")
	}
}

func TestSelectNewPrefersMostAdvanced(t *testing.T) {
	acts := []yagna.Activity{
		{ID: "a", State: yagna.StateTerminated},
		{ID: "b", State: yagna.StateNew},
		{ID: "c", State: yagna.StateReady},
		{ID: "d", State: yagna.StateReady},
	}
	got, ok := activity.SelectNew(acts)
	if !ok || got.ID != "c" {
		t.Fatalf("expected c, got %+v ok=%v", got, ok)
	}
	if _, ok := activity.SelectNew(acts[:1]); ok {
		t.Fatal("expected no live activity")
	}
}

func TestPriceFromAgreementWithoutFixed(t *testing.T) {
	price := activity.PriceFromAgreement(yagna.Agreement{
		UsageVector:  []string{job.UsageDuration},
		Coefficients: []decimal.Decimal{dec("0.2")},
	})
	if !price.Fixed.IsZero() || len(price.Coefficients) != 1 {
		t.Fatalf("unexpected price %+v", price)
	}
}

func TestApplyInvoice(t *testing.T) {
	j := newTestJob(t, yagna.StateReady)
	inv := yagna.Invoice{InvoiceID: "inv-1", AgreementID: "agr-1", Amount: dec("1.5")}
	accepted := yagna.InvoiceEvent{InvoiceID: "inv-1", EventType: yagna.InvoiceAccepted, EventDate: t0.Add(time.Minute)}

	next := activity.ApplyInvoice(j, inv, accepted)
	ps, ok := next.PaymentStatus()
	if !ok || ps.State != job.PaymentAccepted || !ps.Amount.Equal(dec("1.5")) {
		t.Fatalf("unexpected payment status %+v ok=%v", ps, ok)
	}
	if again := activity.ApplyInvoice(next, inv, accepted); again != next {
		t.Fatal("expected repeated invoice event to be a no-op")
	}

	older := yagna.InvoiceEvent{InvoiceID: "inv-1", EventType: yagna.InvoiceReceived, EventDate: t0}
	if activity.ApplyInvoice(next, inv, older) != next {
		t.Fatal("expected older event to be ignored")
	}

	other := yagna.Invoice{InvoiceID: "inv-2", AgreementID: "agr-2"}
	if activity.ApplyInvoice(next, other, accepted) != next {
		t.Fatal("expected invoice for another agreement to be ignored")
	}
}

func TestApplyPaymentMatchesAgreementAndActivity(t *testing.T) {
	j := newTestJob(t, yagna.StateReady)
	p := yagna.Payment{
		PaymentID: "pay-1",
		Timestamp: t0.Add(time.Hour),
		AgreementPayments: []yagna.AgreementPayment{
			{AgreementID: "agr-1", Amount: dec("1")},
			{AgreementID: "agr-9", Amount: dec("7")},
		},
		ActivityPayments: []yagna.ActivityPayment{{ActivityID: "act-1", Amount: dec("0.25")}},
	}
	next := activity.ApplyPayment(j, p)
	payments := next.Payments()
	if len(payments) != 1 || !payments[0].Amount.Equal(dec("1.25")) {
		t.Fatalf("unexpected payments %+v", payments)
	}
	if activity.ApplyPayment(next, p) != next {
		t.Fatal("expected duplicate payment to be ignored")
	}
	unrelated := yagna.Payment{PaymentID: "pay-2", AgreementPayments: []yagna.AgreementPayment{{AgreementID: "agr-9", Amount: dec("1")}}}
	if activity.ApplyPayment(next, unrelated) != next {
		t.Fatal("expected unrelated payment to be ignored")
	}
}

func TestPaymentStateMapping(t *testing.T) {
	tests := map[yagna.InvoiceEventType]job.PaymentState{
		yagna.InvoiceReceived:  job.PaymentSent,
		yagna.InvoiceAccepted:  job.PaymentAccepted,
		yagna.InvoiceRejected:  job.PaymentRejected,
		yagna.InvoiceFailed:    job.PaymentRejected,
		yagna.InvoiceSettled:   job.PaymentSettled,
		yagna.InvoiceCancelled: job.PaymentCancelled,
	}
	for in, want := range tests {
		got, ok := activity.PaymentState(in)
		if !ok || got != want {
			t.Errorf("PaymentState(%s) = %s,%v want %s", in, got, ok, want)
		}
	}
	if _, ok := activity.PaymentState("DebitNoteEvent"); ok {
		t.Error("expected unknown event type to be rejected")
	}
}
