package activity

import (
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/job"
	"yanode/internal/yagna"
)

// JobStatus maps an activity state to a job status. ok is false for states
// that end the job.
func JobStatus(state yagna.ActivityState) (status job.Status, ok bool) {
	switch state {
	case yagna.StateNew:
		return job.Idle, true
	case yagna.StateInitialized, yagna.StateDeployed:
		return job.DownloadingModel, true
	case yagna.StateReady:
		return job.Computing, true
	default:
		return job.Idle, false
	}
}

// Live reports whether an activity can back a job.
func Live(act yagna.Activity) bool {
	_, ok := JobStatus(act.State)
	return ok
}

// Find returns the activity with the given ID.
func Find(acts []yagna.Activity, id string) (yagna.Activity, bool) {
	i := slices.IndexFunc(acts, func(a yagna.Activity) bool { return a.ID == id })
	if i < 0 {
		return yagna.Activity{}, false
	}
	return acts[i], true
}

// SelectNew picks the activity a new job should track: the most advanced live
// activity, first in list order on ties.
func SelectNew(acts []yagna.Activity) (yagna.Activity, bool) {
	var (
		best   yagna.Activity
		status job.Status
		found  bool
	)
	for _, act := range acts {
		s, ok := JobStatus(act.State)
		if !ok {
			continue
		}
		if !found || s > status {
			best, status, found = act, s, true
		}
	}
	return best, found
}

// Count tallies activities by state.
func Count(acts []yagna.Activity) map[yagna.ActivityState]int {
	counts := make(map[yagna.ActivityState]int, len(acts))
	for _, act := range acts {
		counts[act.State]++
	}
	return counts
}

// Apply moves j forward to match its activity. It returns nil when the
// activity is missing or terminal. Status never moves backwards and usage
// counters never decrease.
func Apply(j *job.Job, act yagna.Activity, found bool, usage []float64, now time.Time) *job.Job {
	if j == nil {
		return nil
	}
	status, live := JobStatus(act.State)
	if !found || !live {
		return nil
	}
	next := j.Advance(status, now)
	if len(usage) > 0 {
		next = next.WithUsage(usage, now)
	}
	return next
}

// PriceFromAgreement builds a linear price. The coefficient list carries one
// entry per usage counter followed by the fixed price.
func PriceFromAgreement(a yagna.Agreement) job.Price {
	price := job.Price{UsageVector: slices.Clone(a.UsageVector), Fixed: decimal.Zero}
	n := len(a.UsageVector)
	switch {
	case len(a.Coefficients) > n:
		price.Coefficients = slices.Clone(a.Coefficients[:n])
		price.Fixed = a.Coefficients[n]
	default:
		price.Coefficients = slices.Clone(a.Coefficients)
	}
	return price
}

// NewJob creates the job for a freshly observed activity.
func NewJob(act yagna.Activity, agreement yagna.Agreement, usage []float64, now time.Time) (*job.Job, error) {
	j, err := job.New(job.Identity{
		ID:          agreement.ID,
		ActivityID:  act.ID,
		RequestorID: agreement.RequestorID,
		Price:       PriceFromAgreement(agreement),
	}, now)
	if err != nil {
		return nil, err
	}
	return Apply(j, act, true, usage, now), nil
}

// PaymentState maps an invoice event to the job payment state.
func PaymentState(t yagna.InvoiceEventType) (job.PaymentState, bool) {
	switch t {
	case yagna.InvoiceReceived:
		return job.PaymentSent, true
	case yagna.InvoiceAccepted:
		return job.PaymentAccepted, true
	case yagna.InvoiceRejected, yagna.InvoiceFailed:
		return job.PaymentRejected, true
	case yagna.InvoiceSettled:
		return job.PaymentSettled, true
	case yagna.InvoiceCancelled:
		return job.PaymentCancelled, true
	default:
		return "", false
	}
}

// SortEvents orders invoice events oldest first so the newest state wins.
func SortEvents(events []yagna.InvoiceEvent) {
	sort.SliceStable(events, func(i, k int) bool {
		return events[i].EventDate.Before(events[k].EventDate)
	})
}

// ApplyInvoice replaces the payment status of j when the invoice belongs to
// it. Events older than the stored status are ignored.
func ApplyInvoice(j *job.Job, inv yagna.Invoice, ev yagna.InvoiceEvent) *job.Job {
	if j == nil || inv.AgreementID != j.ID() {
		return j
	}
	state, ok := PaymentState(ev.EventType)
	if !ok {
		return j
	}
	if current, has := j.PaymentStatus(); has && ev.EventDate.Before(current.UpdatedAt) {
		return j
	}
	return j.WithPaymentStatus(job.PaymentStatus{
		State:     state,
		InvoiceID: inv.InvoiceID,
		Amount:    inv.Amount,
		UpdatedAt: ev.EventDate,
	})
}

// PaymentFor extracts the part of p that covers j, matching agreement
// allocations by job ID and activity allocations by activity ID.
func PaymentFor(j *job.Job, p yagna.Payment) (job.Payment, bool) {
	if j == nil || p.PaymentID == "" {
		return job.Payment{}, false
	}
	amount := decimal.Zero
	matched := false
	for _, ap := range p.AgreementPayments {
		if ap.AgreementID == j.ID() {
			amount = amount.Add(ap.Amount)
			matched = true
		}
	}
	for _, ap := range p.ActivityPayments {
		if j.ActivityID() != "" && ap.ActivityID == j.ActivityID() {
			amount = amount.Add(ap.Amount)
			matched = true
		}
	}
	if !matched {
		return job.Payment{}, false
	}
	return job.Payment{ID: p.PaymentID, Amount: amount, At: p.Timestamp, Details: p.Details}, true
}

// ApplyPayment appends the confirmation covering j, if any.
func ApplyPayment(j *job.Job, p yagna.Payment) *job.Job {
	payment, ok := PaymentFor(j, p)
	if !ok {
		return j
	}
	return j.WithPayments(payment)
}
