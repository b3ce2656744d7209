package job

import "fmt"

// Status is the lifecycle position of a job. Values are ordered.
type Status int

const (
	Idle Status = iota
	DownloadingModel
	Computing
)

var statusNames = [...]string{"idle", "downloading_model", "computing"}

func (s Status) String() string {
	if s < Idle || s > Computing {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown job status %q", name)
}

// PaymentState is the invoice lifecycle for a job.
type PaymentState string

const (
	PaymentSent      PaymentState = "sent"
	PaymentAccepted  PaymentState = "accepted"
	PaymentRejected  PaymentState = "rejected"
	PaymentSettled   PaymentState = "settled"
	PaymentCancelled PaymentState = "cancelled"
)
