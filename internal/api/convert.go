package api

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/history"
	"yanode/internal/job"
	"yanode/internal/node"
	"yanode/internal/yagna"
)

// FromPrice converts a job price to its API representation.
func FromPrice(p job.Price) Price {
	coeffs := make([]string, 0, len(p.Coefficients))
	for _, c := range p.Coefficients {
		coeffs = append(coeffs, c.String())
	}
	vector := p.UsageVector
	if vector == nil {
		vector = []string{}
	}
	return Price{UsageVector: vector, Coefficients: coeffs, Fixed: p.Fixed.String()}
}

// FromJob converts the current job, returning nil when there is none.
func FromJob(j *job.Job) *Job {
	if j == nil {
		return nil
	}
	dto := FromSnapshot(j.Snapshot())
	return &dto
}

// FromSnapshot converts a detached job snapshot.
func FromSnapshot(s job.Snapshot) Job {
	paid := decimal.Zero
	payments := make([]JobPayment, 0, len(s.Payments))
	for _, p := range s.Payments {
		paid = paid.Add(p.Amount)
		payments = append(payments, JobPayment{
			ID:      p.ID,
			Amount:  p.Amount.String(),
			At:      formatTime(p.At),
			Details: p.Details,
		})
	}
	usage := s.Usage
	if usage == nil {
		usage = []float64{}
	}
	dto := Job{
		ID:          s.ID,
		ActivityID:  s.ActivityID,
		RequestorID: s.RequestorID,
		Status:      s.Status.String(),
		Price:       FromPrice(s.Price),
		Usage:       usage,
		Reward:      s.Reward.String(),
		PaidTotal:   paid.String(),
		Payments:    payments,
		StartedAt:   formatTime(s.StartedAt),
		UpdatedAt:   formatTime(s.UpdatedAt),
	}
	if ps := s.PaymentStatus; ps != nil {
		dto.PaymentStatus = &JobPaymentStatus{
			State:     string(ps.State),
			InvoiceID: ps.InvoiceID,
			Amount:    ps.Amount.String(),
			UpdatedAt: formatTime(ps.UpdatedAt),
		}
	}
	return dto
}

// FromRecord converts a stored job.
func FromRecord(r history.Record) JobRecord {
	dto := JobRecord{Job: FromSnapshot(r.Job), RunID: r.RunID}
	if r.FinishedAt != nil {
		dto.FinishedAt = formatTime(*r.FinishedAt)
	}
	return dto
}

// FromRecords converts stored jobs preserving order.
func FromRecords(records []history.Record) []JobRecord {
	out := make([]JobRecord, 0, len(records))
	for _, r := range records {
		out = append(out, FromRecord(r))
	}
	return out
}

// FromPaymentStatus converts an account summary for account.
func FromPaymentStatus(account string, ps yagna.PaymentStatus) PaymentStatus {
	return PaymentStatus{
		Account:  account,
		Amount:   ps.Amount.String(),
		Reserved: ps.Reserved.String(),
		Incoming: fromNotes(ps.Incoming),
		Outgoing: fromNotes(ps.Outgoing),
		Driver:   ps.Driver,
		Network:  ps.Network,
		Token:    ps.Token,
	}
}

func fromNotes(n yagna.StatusNotes) Amounts {
	return Amounts{
		Requested: n.Requested.TotalAmount.String(),
		Accepted:  n.Accepted.TotalAmount.String(),
		Confirmed: n.Confirmed.TotalAmount.String(),
	}
}

// FromDaemons converts live daemon processes ordered by role.
func FromDaemons(daemons []node.DaemonInfo) []Daemon {
	out := make([]Daemon, 0, len(daemons))
	for _, d := range daemons {
		out = append(out, Daemon{
			Role:      string(d.Role),
			PID:       d.PID,
			Path:      d.Path,
			StartedAt: formatTime(d.StartedAt),
		})
	}
	slices.SortFunc(out, func(a, b Daemon) int { return cmp.Compare(a.Role, b.Role) })
	return out
}

// FromCounters converts activity counts keyed by state.
func FromCounters(counters map[yagna.ActivityState]int) map[string]int {
	out := make(map[string]int, len(counters))
	for state, n := range counters {
		out[string(state)] = n
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
