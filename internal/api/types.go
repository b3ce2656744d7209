package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Price describes linear pricing: fixed plus usage times coefficient.
type Price struct {
	UsageVector  []string `json:"usageVector"`
	Coefficients []string `json:"coefficients"`
	Fixed        string   `json:"fixed"`
}

// JobPaymentStatus is the latest invoice state of a job.
type JobPaymentStatus struct {
	State     string `json:"state"`
	InvoiceID string `json:"invoiceId,omitempty"`
	Amount    string `json:"amount"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// JobPayment is one confirmed payment covering a job.
type JobPayment struct {
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	At      string `json:"at,omitempty"`
	Details string `json:"details,omitempty"`
}

// Job describes the job currently served by the node.
type Job struct {
	ID            string            `json:"id"`
	ActivityID    string            `json:"activityId,omitempty"`
	RequestorID   string            `json:"requestorId"`
	Status        string            `json:"status"`
	Price         Price             `json:"price"`
	Usage         []float64         `json:"usage"`
	Reward        string            `json:"reward"`
	PaidTotal     string            `json:"paidTotal"`
	PaymentStatus *JobPaymentStatus `json:"paymentStatus,omitempty"`
	Payments      []JobPayment      `json:"payments"`
	StartedAt     string            `json:"startedAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
}

// JobRecord is a stored job.
type JobRecord struct {
	Job        Job    `json:"job"`
	RunID      string `json:"runId,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// Daemon describes a live daemon process.
type Daemon struct {
	Role      string `json:"role"`
	PID       int    `json:"pid"`
	Path      string `json:"path"`
	StartedAt string `json:"startedAt,omitempty"`
}

// NodeStatus aggregates node runtime information for API consumers.
type NodeStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	Status        string         `json:"status"`
	Seq           uint64         `json:"seq"`
	LastError     string         `json:"lastError,omitempty"`
	NodeID        string         `json:"nodeId,omitempty"`
	WalletAddress string         `json:"walletAddress,omitempty"`
	Network       string         `json:"network"`
	Price         Price          `json:"price"`
	Job           *Job           `json:"job,omitempty"`
	Counters      map[string]int `json:"counters"`
	CountersAt    string         `json:"countersAt,omitempty"`
	Daemons       []Daemon       `json:"daemons"`
	LockPath      string         `json:"lockPath"`
	HistoryPath   string         `json:"historyPath,omitempty"`
}

// Amounts is one settlement stage of a payment account summary.
type Amounts struct {
	Requested string `json:"requested"`
	Accepted  string `json:"accepted"`
	Confirmed string `json:"confirmed"`
}

// PaymentStatus is the payment account summary.
type PaymentStatus struct {
	Account  string  `json:"account"`
	Amount   string  `json:"amount"`
	Reserved string  `json:"reserved"`
	Incoming Amounts `json:"incoming"`
	Outgoing Amounts `json:"outgoing"`
	Driver   string  `json:"driver"`
	Network  string  `json:"network"`
	Token    string  `json:"token"`
}

// JobListResponse wraps stored jobs, newest first.
type JobListResponse struct {
	Jobs []JobRecord `json:"jobs"`
}

// JobResponse wraps the current job, nil when idle.
type JobResponse struct {
	Job *Job `json:"job"`
}

// Event kinds pushed on the change stream.
const (
	EventStatus = "status"
	EventJob    = "job"
)

// Event is one status or job change.
type Event struct {
	Kind   string `json:"kind"`
	Seq    uint64 `json:"seq"`
	At     string `json:"at,omitempty"`
	Status string `json:"status,omitempty"`
	Job    *Job   `json:"job,omitempty"`
}
