package notifications

import (
	"context"
	"log/slog"

	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/node"
	"yanode/internal/notify"
)

// Source is the node state Watch follows.
type Source interface {
	SubscribeStatus(buffer int) (<-chan notify.Update[node.Status], func())
	SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func())
	LastError() error
	NodeID() string
}

// Watch publishes events for src's status and job changes until ctx ends.
// The first update on each stream is taken as the baseline and is not
// announced. Delivery failures are logged and never stop the watch.
func Watch(ctx context.Context, svc Service, src Source, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "notifications")

	statuses, stopStatus := src.SubscribeStatus(8)
	defer stopStatus()
	jobs, stopJobs := src.SubscribeJob(8)
	defer stopJobs()

	publish := func(event Event, payload Payload) {
		if err := svc.Publish(ctx, event, payload); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "push notification was not delivered"),
			)
		}
	}

	var (
		prevStatus node.Status
		prevJob    *job.Job
		seenStatus bool
		seenJob    bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-statuses:
			if !ok {
				return
			}
			if seenStatus && u.Value != prevStatus {
				onStatus(publish, src, prevStatus, u.Value)
			}
			prevStatus, seenStatus = u.Value, true
		case u, ok := <-jobs:
			if !ok {
				return
			}
			if seenJob {
				onJob(publish, u.Value, job.Compare(prevJob, u.Value))
			}
			prevJob, seenJob = u.Value, true
		}
	}
}

func onStatus(publish func(Event, Payload), src Source, prev, next node.Status) {
	switch next {
	case node.Ready:
		publish(EventNodeReady, Payload{"nodeID": src.NodeID()})
	case node.Error:
		publish(EventError, Payload{"context": "node", "error": src.LastError()})
	case node.Off:
		if prev == node.Ready {
			publish(EventNodeStopped, Payload{"nodeID": src.NodeID()})
		}
	}
}

func onJob(publish func(Event, Payload), current *job.Job, c job.Change) {
	if c.Finished != nil {
		publish(EventJobFinished, Payload{
			"jobID":  c.Finished.ID(),
			"reward": c.Finished.Reward().StringFixed(4),
		})
	}
	if c.Started != nil {
		publish(EventJobStarted, Payload{
			"jobID":     c.Started.ID(),
			"requestor": c.Started.RequestorID(),
		})
	}
	for _, p := range c.Payments {
		publish(EventPaymentReceived, Payload{
			"jobID":  current.ID(),
			"amount": p.Amount.String(),
		})
	}
}
