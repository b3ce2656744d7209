package yagna

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Identity is the response of GET /me.
type Identity struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

// IDInfo is one entry of `yagna id show`.
type IDInfo struct {
	Alias     string `json:"alias"`
	IsDefault bool   `json:"isDefault"`
	IsLocked  bool   `json:"isLocked"`
	NodeID    string `json:"nodeId"`
}

// KeyInfo describes one application key.
type KeyInfo struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	ID      string `json:"id"`
	Role    string `json:"role"`
	Created string `json:"created,omitempty"`
}

// ActivityState is the daemon-side lifecycle of one activity.
type ActivityState string

const (
	StateNew          ActivityState = "New"
	StateInitialized  ActivityState = "Initialized"
	StateDeployed     ActivityState = "Deployed"
	StateReady        ActivityState = "Ready"
	StateUnresponsive ActivityState = "Unresponsive"
	StateTerminated   ActivityState = "Terminated"
)

// Activity pairs an activity ID with its current and pending state.
type Activity struct {
	ID    string
	State ActivityState
	Next  ActivityState
}

// Agreement is the subset of a market agreement needed to price a job.
type Agreement struct {
	ID           string
	RequestorID  string
	ProviderID   string
	UsageVector  []string
	Coefficients []decimal.Decimal
	ValidTo      time.Time
}

// Usage is the cumulative usage vector reported for an activity.
type Usage struct {
	Current   []float64 `json:"currentUsage"`
	Timestamp int64     `json:"timestamp"`
}

// At converts the report timestamp to time.Time.
func (u Usage) At() time.Time {
	if u.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(u.Timestamp, 0).UTC()
}

// InvoiceEventType names an invoice lifecycle event.
type InvoiceEventType string

const (
	InvoiceReceived  InvoiceEventType = "InvoiceReceivedEvent"
	InvoiceAccepted  InvoiceEventType = "InvoiceAcceptedEvent"
	InvoiceRejected  InvoiceEventType = "InvoiceRejectedEvent"
	InvoiceFailed    InvoiceEventType = "InvoiceFailedEvent"
	InvoiceSettled   InvoiceEventType = "InvoiceSettledEvent"
	InvoiceCancelled InvoiceEventType = "InvoiceCancelledEvent"
)

// InvoiceEvent is one entry of the invoice event feed.
type InvoiceEvent struct {
	InvoiceID string           `json:"invoiceId"`
	EventDate time.Time        `json:"eventDate"`
	EventType InvoiceEventType `json:"eventType"`
}

// Invoice is an issued invoice.
type Invoice struct {
	InvoiceID       string          `json:"invoiceId"`
	IssuerID        string          `json:"issuerId"`
	RecipientID     string          `json:"recipientId"`
	PayeeAddr       string          `json:"payeeAddr"`
	PayerAddr       string          `json:"payerAddr"`
	PaymentPlatform string          `json:"paymentPlatform"`
	Timestamp       time.Time       `json:"timestamp"`
	AgreementID     string          `json:"agreementId"`
	ActivityIDs     []string        `json:"activityIds"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDueDate  time.Time       `json:"paymentDueDate"`
	Status          string          `json:"status"`
}

// AgreementPayment is the share of a payment covering one agreement.
type AgreementPayment struct {
	AgreementID  string          `json:"agreementId"`
	Amount       decimal.Decimal `json:"amount"`
	AllocationID string          `json:"allocationId"`
}

// ActivityPayment is the share of a payment covering one activity.
type ActivityPayment struct {
	ActivityID   string          `json:"activityId"`
	Amount       decimal.Decimal `json:"amount"`
	AllocationID string          `json:"allocationId"`
}

// Payment is a confirmed payment.
type Payment struct {
	PaymentID         string             `json:"paymentId"`
	PayerID           string             `json:"payerId"`
	PayeeID           string             `json:"payeeId"`
	PayerAddr         string             `json:"payerAddr"`
	PayeeAddr         string             `json:"payeeAddr"`
	PaymentPlatform   string             `json:"paymentPlatform"`
	Amount            decimal.Decimal    `json:"amount"`
	Timestamp         time.Time          `json:"timestamp"`
	AgreementPayments []AgreementPayment `json:"agreementPayments"`
	ActivityPayments  []ActivityPayment  `json:"activityPayments"`
	Details           string             `json:"details"`
}

// StatValue is a total with the number of agreements it spans.
type StatValue struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	AgreementsCount uint32          `json:"agreementsCount"`
}

// StatusNotes groups amounts by settlement stage.
type StatusNotes struct {
	Requested StatValue `json:"requested"`
	Accepted  StatValue `json:"accepted"`
	Confirmed StatValue `json:"confirmed"`
}

// PaymentStatus is the account summary printed by `payment status`.
type PaymentStatus struct {
	Amount   decimal.Decimal `json:"amount"`
	Reserved decimal.Decimal `json:"reserved"`
	Outgoing StatusNotes     `json:"outgoing"`
	Incoming StatusNotes     `json:"incoming"`
	Driver   string          `json:"driver"`
	Network  string          `json:"network"`
	Token    string          `json:"token"`
}

// ActivityCounters counts activities by state.
type ActivityCounters struct {
	New        int `json:"New"`
	Ready      int `json:"Ready"`
	Terminated int `json:"Terminated"`
	Deployed   int `json:"Deployed"`
}

// ActivityStatus is printed by `activity status`.
type ActivityStatus struct {
	Last1h ActivityCounters `json:"last1h"`
	Total  ActivityCounters `json:"total"`
}

// Preset is a provider pricing profile.
type Preset struct {
	Name         string                     `json:"name"`
	ExeUnit      string                     `json:"exeunit-name"`
	PricingModel string                     `json:"pricing-model"`
	InitialPrice decimal.Decimal            `json:"initial-price"`
	UsageCoeffs  map[string]decimal.Decimal `json:"usage-coeffs"`
}

// ProviderConfig is the subset of `ya-provider config` this node sets.
type ProviderConfig struct {
	NodeName string `json:"node_name,omitempty"`
	Subnet   string `json:"subnet,omitempty"`
	Account  string `json:"account,omitempty"`
}

// result is the Ok/Err envelope some CLI commands print.
type result struct {
	Ok  json.RawMessage `json:"Ok"`
	Err json.RawMessage `json:"Err"`
}
