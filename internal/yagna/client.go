package yagna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	propUsageVector = "golem.com.usage.vector"
	propLinearCoeff = "golem.com.pricing.model.linear.coeffs"

	maxErrorBody = 512
)

// HTTPDoer describes the HTTP client used to reach the daemon API.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// StatusCode exposes the HTTP status for error classification.
func (e *APIError) StatusCode() int { return e.Status }

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// Client talks to the daemon REST API with a bearer app key.
type Client struct {
	baseURL string
	appKey  string
	http    HTTPDoer
}

// NewClient constructs an API client rooted at baseURL.
func NewClient(baseURL, appKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		appKey:  strings.TrimSpace(appKey),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Me returns the identity the daemon runs as.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var id Identity
	if err := c.getJSON(ctx, "/me", nil, &id); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(id.Identity) == "" {
		return Identity{}, fmt.Errorf("/me: empty identity")
	}
	return id, nil
}

// ActivityIDs lists the activities known to the daemon.
func (c *Client) ActivityIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "/activity-api/v1/activity", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ActivityState fetches the state pair of one activity.
func (c *Client) ActivityState(ctx context.Context, activityID string) (Activity, error) {
	var payload struct {
		State [2]*ActivityState `json:"state"`
	}
	if err := c.getJSON(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/state", nil, &payload); err != nil {
		return Activity{}, err
	}
	act := Activity{ID: activityID}
	if payload.State[0] != nil {
		act.State = *payload.State[0]
	}
	if payload.State[1] != nil {
		act.Next = *payload.State[1]
	}
	return act, nil
}

// Activities lists every activity with its state. An activity that vanishes
// between the list and the state query is skipped.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	ids, err := c.ActivityIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(ids))
	for _, id := range ids {
		act, err := c.ActivityState(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, act)
	}
	return out, nil
}

// ActivityAgreement resolves the agreement an activity runs under.
func (c *Client) ActivityAgreement(ctx context.Context, activityID string) (Agreement, error) {
	var agreementID string
	if err := c.getJSON(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/agreement", nil, &agreementID); err != nil {
		return Agreement{}, err
	}
	return c.Agreement(ctx, agreementID)
}

// Agreement fetches a market agreement and extracts its pricing.
func (c *Client) Agreement(ctx context.Context, agreementID string) (Agreement, error) {
	var payload struct {
		AgreementID string    `json:"agreementId"`
		ValidTo     time.Time `json:"validTo"`
		Demand      struct {
			RequestorID string `json:"requestorId"`
		} `json:"demand"`
		Offer struct {
			ProviderID string         `json:"providerId"`
			Properties map[string]any `json:"properties"`
		} `json:"offer"`
	}
	if err := c.getJSON(ctx, "/market-api/v1/agreements/"+url.PathEscape(agreementID), nil, &payload); err != nil {
		return Agreement{}, err
	}
	agreement := Agreement{
		ID:          payload.AgreementID,
		RequestorID: payload.Demand.RequestorID,
		ProviderID:  payload.Offer.ProviderID,
		ValidTo:     payload.ValidTo,
	}
	if agreement.ID == "" {
		agreement.ID = agreementID
	}
	if raw, ok := lookupProperty(payload.Offer.Properties, propUsageVector); ok {
		vector, err := stringList(raw)
		if err != nil {
			return Agreement{}, fmt.Errorf("agreement %s: %s: %w", agreementID, propUsageVector, err)
		}
		agreement.UsageVector = vector
	}
	if raw, ok := lookupProperty(payload.Offer.Properties, propLinearCoeff); ok {
		coeffs, err := decimalList(raw)
		if err != nil {
			return Agreement{}, fmt.Errorf("agreement %s: %s: %w", agreementID, propLinearCoeff, err)
		}
		agreement.Coefficients = coeffs
	}
	return agreement, nil
}

// Usage fetches the cumulative usage of an activity.
func (c *Client) Usage(ctx context.Context, activityID string) (Usage, error) {
	var usage Usage
	if err := c.getJSON(ctx, "/activity-api/v1/activity/"+url.PathEscape(activityID)+"/usage", nil, &usage); err != nil {
		return Usage{}, err
	}
	return usage, nil
}

// InvoiceEvents returns invoice events newer than after.
func (c *Client) InvoiceEvents(ctx context.Context, after time.Time) ([]InvoiceEvent, error) {
	var events []InvoiceEvent
	if err := c.getJSON(ctx, "/payment-api/v1/invoiceEvents", afterQuery(after), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Invoice fetches one invoice.
func (c *Client) Invoice(ctx context.Context, invoiceID string) (Invoice, error) {
	var inv Invoice
	if err := c.getJSON(ctx, "/payment-api/v1/invoices/"+url.PathEscape(invoiceID), nil, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Payments returns payments newer than after.
func (c *Client) Payments(ctx context.Context, after time.Time) ([]Payment, error) {
	var payments []Payment
	if err := c.getJSON(ctx, "/payment-api/v1/payments", afterQuery(after), &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func afterQuery(after time.Time) url.Values {
	if after.IsZero() {
		return nil
	}
	return url.Values{"afterTimestamp": []string{after.UTC().Format(time.RFC3339Nano)}}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c == nil || c.http == nil || c.baseURL == "" {
		return fmt.Errorf("yagna client not configured")
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.appKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.appKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &APIError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: snippet}
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// lookupProperty finds a dotted property either as a flat key or as a path
// through nested objects.
func lookupProperty(props map[string]any, key string) (any, bool) {
	if props == nil {
		return nil, false
	}
	if v, ok := props[key]; ok {
		return v, true
	}
	for prefix, v := range props {
		if !strings.HasPrefix(key, prefix+".") {
			continue
		}
		nested, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if found, ok := lookupProperty(nested, strings.TrimPrefix(key, prefix+".")); ok {
			return found, true
		}
	}
	return nil, false
}

func stringList(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func decimalList(raw any) ([]decimal.Decimal, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", raw)
	}
	out := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		var text string
		switch v := item.(type) {
		case json.Number:
			text = v.String()
		case string:
			text = v
		default:
			return nil, fmt.Errorf("expected number, got %T", item)
		}
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
