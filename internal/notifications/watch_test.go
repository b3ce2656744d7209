package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yanode/internal/job"
	"yanode/internal/node"
	"yanode/internal/notifications"
	"yanode/internal/notify"
)

type recorded struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingService struct {
	events chan recorded
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events <- recorded{event: event, payload: payload}
	return nil
}

type fakeSource struct {
	status     *notify.Topic[node.Status]
	jobs       *notify.Topic[*job.Job]
	subscribed chan struct{}
	once       sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		status:     notify.NewTopic(node.Off),
		jobs:       notify.NewTopic[*job.Job](nil),
		subscribed: make(chan struct{}),
	}
}

func (f *fakeSource) SubscribeStatus(buffer int) (<-chan notify.Update[node.Status], func()) {
	return f.status.Subscribe(buffer)
}

func (f *fakeSource) SubscribeJob(buffer int) (<-chan notify.Update[*job.Job], func()) {
	ch, cancel := f.jobs.Subscribe(buffer)
	f.once.Do(func() { close(f.subscribed) })
	return ch, cancel
}

func (f *fakeSource) LastError() error { return errors.New("provider exited with code 3") }

func (f *fakeSource) NodeID() string { return "0xnode" }

func next(t *testing.T, svc *recordingService) recorded {
	t.Helper()
	select {
	case r := <-svc.events:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return recorded{}
	}
}

func TestWatchPublishesNodeEvents(t *testing.T) {
	svc := &recordingService{events: make(chan recorded, 16)}
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		notifications.Watch(ctx, svc, src, nil)
		close(done)
	}()
	<-src.subscribed

	src.status.Publish(node.Starting)
	src.status.Publish(node.Ready)
	if r := next(t, svc); r.event != notifications.EventNodeReady || r.payload["nodeID"] != "0xnode" {
		t.Fatalf("unexpected event %+v", r)
	}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j, err := job.New(job.Identity{ID: "agr-1", RequestorID: "0xreq", Price: job.Price{Fixed: decimal.RequireFromString("0.5")}}, at)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	src.jobs.Publish(j)
	if r := next(t, svc); r.event != notifications.EventJobStarted || r.payload["jobID"] != "agr-1" || r.payload["requestor"] != "0xreq" {
		t.Fatalf("unexpected event %+v", r)
	}

	src.jobs.Publish(j.WithPayments(job.Payment{ID: "p1", Amount: decimal.RequireFromString("0.5"), At: at}))
	if r := next(t, svc); r.event != notifications.EventPaymentReceived || r.payload["amount"] != "0.5" || r.payload["jobID"] != "agr-1" {
		t.Fatalf("unexpected event %+v", r)
	}

	src.jobs.Publish(nil)
	if r := next(t, svc); r.event != notifications.EventJobFinished || r.payload["reward"] != "0.5000" {
		t.Fatalf("unexpected event %+v", r)
	}

	src.status.Publish(node.Error)
	r := next(t, svc)
	if r.event != notifications.EventError {
		t.Fatalf("unexpected event %+v", r)
	}
	if err, ok := r.payload["error"].(error); !ok || err.Error() != "provider exited with code 3" {
		t.Fatalf("error payload = %v", r.payload["error"])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	select {
	case extra := <-svc.events:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}
