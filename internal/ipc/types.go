package ipc

import "yanode/internal/api"

// ServiceName is the RPC receiver name.
const ServiceName = "Yanode"

// StartRequest asks the daemon to bring the node up.
type StartRequest struct{}

// StartResponse indicates whether the node reached Ready.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the node. With Shutdown the daemon process exits too.
type StopRequest struct {
	Shutdown bool `json:"shutdown"`
}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// NodeStatus mirrors the HTTP API status DTO.
type NodeStatus = api.NodeStatus

// StatusResponse represents combined daemon and node status.
type StatusResponse struct {
	Running bool       `json:"running"`
	PID     int        `json:"pid"`
	LogPath string     `json:"log_path"`
	APIAddr string     `json:"api_addr"`
	Node    NodeStatus `json:"node"`
}

// JobsRequest lists stored jobs started at or after Since (RFC3339 time or
// a duration counted back from now). Empty means all.
type JobsRequest struct {
	Since string `json:"since"`
}

// JobsResponse contains stored jobs, newest first.
type JobsResponse struct {
	Jobs []api.JobRecord `json:"jobs"`
}

// PaymentRequest fetches the payment account summary.
type PaymentRequest struct{}

// PaymentResponse wraps the account summary.
type PaymentResponse struct {
	Payment api.PaymentStatus `json:"payment"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Role       string `json:"role"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
