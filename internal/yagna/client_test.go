package yagna_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"yanode/internal/readiness"
	"yanode/internal/yagna"
)

type requestLog struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (l *requestLog) first() *http.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[0]
}

func newAPI(t *testing.T, routes map[string]string) (*httptest.Server, *requestLog) {
	t.Helper()
	seen := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.mu.Lock()
		seen.requests = append(seen.requests, r)
		seen.mu.Unlock()
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestMeSendsBearerKey(t *testing.T) {
	srv, seen := newAPI(t, map[string]string{
		"/me": `{"name":"node","identity":"0xabc","role":"manager"}`,
	})
	client := yagna.NewClient(srv.URL+"/", "secret")

	id, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if id.Identity != "0xabc" || id.Name != "node" || id.Role != "manager" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if got := seen.first().Header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestMeUnauthorizedIsFatalForReadiness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid app key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := yagna.NewClient(srv.URL, "wrong").Me(context.Background())
	var apiErr *yagna.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode() != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.StatusCode())
	}
	if readiness.StatusClassifier(http.StatusUnauthorized)(err) != readiness.Fatal {
		t.Fatal("expected 401 to classify as fatal")
	}
}

func TestMeRejectsEmptyIdentity(t *testing.T) {
	srv, _ := newAPI(t, map[string]string{"/me": `{}`})
	if _, err := yagna.NewClient(srv.URL, "k").Me(context.Background()); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestActivitiesSkipsVanishedActivity(t *testing.T) {
	srv, _ := newAPI(t, map[string]string{
		"/activity-api/v1/activity":         `["a1","gone","a2"]`,
		"/activity-api/v1/activity/a1/state": `{"state":["Deployed","Ready"]}`,
		"/activity-api/v1/activity/a2/state": `{"state":["Ready",null]}`,
	})
	acts, err := yagna.NewClient(srv.URL, "k").Activities(context.Background())
	if err != nil {
		t.Fatalf("Activities returned error: %v", err)
	}
	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(acts))
	}
	if acts[0].ID != "a1" || acts[0].State != yagna.StateDeployed || acts[0].Next != yagna.StateReady {
		t.Fatalf("unexpected first activity %+v", acts[0])
	}
	if acts[1].State != yagna.StateReady || acts[1].Next != "" {
		t.Fatalf("unexpected second activity %+v", acts[1])
	}
}

func TestActivityAgreementExtractsPricing(t *testing.T) {
	tests := []struct {
		name  string
		offer string
	}{
		{
			name:  "flat properties",
			offer: `{"providerId":"0xprov","properties":{"golem.com.usage.vector":["golem.usage.duration_sec","golem.usage.gpu-sec"],"golem.com.pricing.model.linear.coeffs":[0.001,0.002,0.5]}}`,
		},
		{
			name:  "nested properties",
			offer: `{"providerId":"0xprov","properties":{"golem":{"com":{"usage":{"vector":["golem.usage.duration_sec","golem.usage.gpu-sec"]},"pricing":{"model":{"linear":{"coeffs":["0.001","0.002","0.5"]}}}}}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newAPI(t, map[string]string{
				"/activity-api/v1/activity/act/agreement": `"agr-1"`,
				"/market-api/v1/agreements/agr-1":          `{"agreementId":"agr-1","demand":{"requestorId":"0xreq"},"offer":` + tt.offer + `}`,
			})
			agreement, err := yagna.NewClient(srv.URL, "k").ActivityAgreement(context.Background(), "act")
			if err != nil {
				t.Fatalf("ActivityAgreement returned error: %v", err)
			}
			if agreement.ID != "agr-1" || agreement.RequestorID != "0xreq" || agreement.ProviderID != "0xprov" {
				t.Fatalf("unexpected agreement %+v", agreement)
			}
			if len(agreement.UsageVector) != 2 || agreement.UsageVector[1] != "golem.usage.gpu-sec" {
				t.Fatalf("unexpected usage vector %v", agreement.UsageVector)
			}
			if len(agreement.Coefficients) != 3 || agreement.Coefficients[2].String() != "0.5" {
				t.Fatalf("unexpected coefficients %v", agreement.Coefficients)
			}
		})
	}
}

func TestInvoiceEventsPassesAfterTimestamp(t *testing.T) {
	srv, seen := newAPI(t, map[string]string{
		"/payment-api/v1/invoiceEvents": `[{"invoiceId":"inv-1","eventDate":"2024-05-01T10:00:00Z","eventType":"InvoiceAcceptedEvent"}]`,
	})
	after := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	events, err := yagna.NewClient(srv.URL, "k").InvoiceEvents(context.Background(), after)
	if err != nil {
		t.Fatalf("InvoiceEvents returned error: %v", err)
	}
	if len(events) != 1 || events[0].EventType != yagna.InvoiceAccepted {
		t.Fatalf("unexpected events %+v", events)
	}
	if got := seen.first().URL.Query().Get("afterTimestamp"); got != "2024-05-01T09:00:00Z" {
		t.Fatalf("unexpected afterTimestamp %q", got)
	}
}

func TestPaymentsDecodesAllocations(t *testing.T) {
	srv, _ := newAPI(t, map[string]string{
		"/payment-api/v1/payments": `[{"paymentId":"p1","amount":"1.25","timestamp":"2024-05-01T10:00:00Z","agreementPayments":[{"agreementId":"agr-1","amount":"1.0"}],"activityPayments":[{"activityId":"act","amount":"0.25"}]}]`,
	})
	payments, err := yagna.NewClient(srv.URL, "k").Payments(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Payments returned error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(payments))
	}
	p := payments[0]
	if p.Amount.String() != "1.25" || p.AgreementPayments[0].AgreementID != "agr-1" || p.ActivityPayments[0].ActivityID != "act" {
		t.Fatalf("unexpected payment %+v", p)
	}
}

func TestIsNotFound(t *testing.T) {
	srv, _ := newAPI(t, nil)
	_, err := yagna.NewClient(srv.URL, "k").Invoice(context.Background(), "missing")
	if !yagna.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
