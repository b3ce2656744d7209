package job

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrIncomplete is returned when a job would be created without identity.
var ErrIncomplete = errors.New("job identity incomplete")

// PaymentStatus is the latest invoice state reported for a job.
type PaymentStatus struct {
	State     PaymentState    `json:"state"`
	InvoiceID string          `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (p PaymentStatus) equal(other PaymentStatus) bool {
	return p.State == other.State &&
		p.InvoiceID == other.InvoiceID &&
		p.Amount.Equal(other.Amount) &&
		p.UpdatedAt.Equal(other.UpdatedAt)
}

// Payment is one confirmed payment covering a job.
type Payment struct {
	ID      string          `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	At      time.Time       `json:"at"`
	Details string          `json:"details,omitempty"`
}

// Identity is the immutable part of a job, taken from the agreement.
type Identity struct {
	ID          string
	ActivityID  string
	RequestorID string
	Price       Price
}

// Job is an immutable snapshot. Use the With/Advance methods to derive a
// changed copy.
type Job struct {
	id          string
	activityID  string
	requestorID string
	price       Price

	status        Status
	usage         []float64
	reward        decimal.Decimal
	paymentStatus *PaymentStatus
	payments      []Payment
	startedAt     time.Time
	updatedAt     time.Time
}

// New creates an Idle job. ID and RequestorID are required.
func New(ident Identity, at time.Time) (*Job, error) {
	if strings.TrimSpace(ident.ID) == "" || strings.TrimSpace(ident.RequestorID) == "" {
		return nil, ErrIncomplete
	}
	price := ident.Price.clone()
	return &Job{
		id:          ident.ID,
		activityID:  ident.ActivityID,
		requestorID: ident.RequestorID,
		price:       price,
		status:      Idle,
		reward:      price.Fixed,
		startedAt:   at,
		updatedAt:   at,
	}, nil
}

func (j *Job) ID() string              { return j.id }
func (j *Job) ActivityID() string      { return j.activityID }
func (j *Job) RequestorID() string     { return j.requestorID }
func (j *Job) Status() Status          { return j.status }
func (j *Job) Reward() decimal.Decimal { return j.reward }
func (j *Job) StartedAt() time.Time    { return j.startedAt }
func (j *Job) UpdatedAt() time.Time    { return j.updatedAt }

// Price returns a copy of the price snapshot.
func (j *Job) Price() Price { return j.price.clone() }

// Usage returns a copy of the cumulative usage vector.
func (j *Job) Usage() []float64 { return slices.Clone(j.usage) }

// PaymentStatus returns the latest invoice state, if any.
func (j *Job) PaymentStatus() (PaymentStatus, bool) {
	if j.paymentStatus == nil {
		return PaymentStatus{}, false
	}
	return *j.paymentStatus, true
}

// Payments returns a copy of the confirmed payments.
func (j *Job) Payments() []Payment { return slices.Clone(j.payments) }

func (j *Job) clone(at time.Time) *Job {
	next := *j
	next.usage = slices.Clone(j.usage)
	next.payments = slices.Clone(j.payments)
	if j.paymentStatus != nil {
		ps := *j.paymentStatus
		next.paymentStatus = &ps
	}
	if at.After(next.updatedAt) {
		next.updatedAt = at
	}
	return &next
}

// Advance moves the job forward to status. Equal or earlier statuses are ignored.
func (j *Job) Advance(status Status, at time.Time) *Job {
	if status <= j.status || status > Computing {
		return j
	}
	next := j.clone(at)
	next.status = status
	return next
}

// WithUsage merges a usage report. Each counter keeps the larger of the
// stored and reported value, and reward is recomputed.
func (j *Job) WithUsage(usage []float64, at time.Time) *Job {
	merged := slices.Clone(j.usage)
	if len(usage) > len(merged) {
		merged = append(merged, make([]float64, len(usage)-len(merged))...)
	}
	changed := false
	for i, v := range usage {
		if v > merged[i] {
			merged[i] = v
			changed = true
		}
	}
	if !changed && len(merged) == len(j.usage) {
		return j
	}
	next := j.clone(at)
	next.usage = merged
	next.reward = next.price.Reward(merged)
	return next
}

// WithPaymentStatus replaces the payment status.
func (j *Job) WithPaymentStatus(ps PaymentStatus) *Job {
	if j.paymentStatus != nil && j.paymentStatus.equal(ps) {
		return j
	}
	next := j.clone(ps.UpdatedAt)
	next.paymentStatus = &ps
	return next
}

// WithPayments appends confirmations whose ID has not been seen.
func (j *Job) WithPayments(payments ...Payment) *Job {
	var fresh []Payment
	latest := j.updatedAt
	for _, p := range payments {
		if p.ID == "" || j.hasPayment(p.ID) || slices.ContainsFunc(fresh, func(f Payment) bool { return f.ID == p.ID }) {
			continue
		}
		fresh = append(fresh, p)
		if p.At.After(latest) {
			latest = p.At
		}
	}
	if len(fresh) == 0 {
		return j
	}
	next := j.clone(latest)
	next.payments = append(next.payments, fresh...)
	return next
}

func (j *Job) hasPayment(id string) bool {
	return slices.ContainsFunc(j.payments, func(p Payment) bool { return p.ID == id })
}

// PaidTotal sums the confirmed payments.
func (j *Job) PaidTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range j.payments {
		total = total.Add(p.Amount)
	}
	return total
}
