package job

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the serializable, detached form of a Job.
type Snapshot struct {
	ID            string          `json:"id"`
	ActivityID    string          `json:"activityId"`
	RequestorID   string          `json:"requestorId"`
	Status        Status          `json:"status"`
	Price         Price           `json:"price"`
	Usage         []float64       `json:"usage"`
	Reward        decimal.Decimal `json:"reward"`
	PaymentStatus *PaymentStatus  `json:"paymentStatus,omitempty"`
	Payments      []Payment       `json:"payments"`
	StartedAt     time.Time       `json:"startedAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Snapshot copies j into its serializable form.
func (j *Job) Snapshot() Snapshot {
	s := Snapshot{
		ID:          j.id,
		ActivityID:  j.activityID,
		RequestorID: j.requestorID,
		Status:      j.status,
		Price:       j.price.clone(),
		Usage:       slices.Clone(j.usage),
		Reward:      j.reward,
		Payments:    slices.Clone(j.payments),
		StartedAt:   j.startedAt,
		UpdatedAt:   j.updatedAt,
	}
	if j.paymentStatus != nil {
		ps := *j.paymentStatus
		s.PaymentStatus = &ps
	}
	return s
}

// FromSnapshot rebuilds a Job, recomputing reward from usage and price.
func FromSnapshot(s Snapshot) (*Job, error) {
	j, err := New(Identity{ID: s.ID, ActivityID: s.ActivityID, RequestorID: s.RequestorID, Price: s.Price}, s.StartedAt)
	if err != nil {
		return nil, err
	}
	j.status = s.Status
	j.usage = slices.Clone(s.Usage)
	j.reward = j.price.Reward(j.usage)
	j.payments = slices.Clone(s.Payments)
	if s.PaymentStatus != nil {
		ps := *s.PaymentStatus
		j.paymentStatus = &ps
	}
	j.updatedAt = s.UpdatedAt
	return j, nil
}
