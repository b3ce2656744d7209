package job

// Change classifies the difference between two consecutive current jobs as
// seen by a subscriber.
type Change struct {
	// Started is set when next is a job prev was not.
	Started *Job
	// Finished is set when prev is no longer the current job.
	Finished *Job
	// Advanced is true when the same job moved to a later status.
	Advanced bool
	// PaymentState is set when the same job's invoice state changed.
	PaymentState *PaymentStatus
	// Payments lists confirmations next has that prev did not.
	Payments []Payment
}

// Compare reports how next differs from prev. Either may be nil.
func Compare(prev, next *Job) Change {
	var c Change
	switch {
	case prev == nil && next == nil:
		return c
	case prev == nil:
		c.Started = next
		return c
	case next == nil:
		c.Finished = prev
		return c
	case prev.id != next.id:
		c.Finished = prev
		c.Started = next
		return c
	}
	c.Advanced = next.status > prev.status
	if next.paymentStatus != nil && (prev.paymentStatus == nil || prev.paymentStatus.State != next.paymentStatus.State) {
		ps := *next.paymentStatus
		c.PaymentState = &ps
	}
	for _, p := range next.payments {
		if !prev.hasPayment(p.ID) {
			c.Payments = append(c.Payments, p)
		}
	}
	return c
}
