package model

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusSuccess    TaskStatus = "SUCCESS"
	StatusFailed     TaskStatus = "FAILED"
)

// Terminal reports whether no further update may follow s.
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition encodes PENDING -> IN_PROGRESS* -> {SUCCESS | FAILED}.
// Intake may also fail a PENDING task directly when it cannot be scheduled.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case "":
		return next == StatusPending
	case StatusPending:
		return next == StatusInProgress || next.Terminal()
	case StatusInProgress:
		return next == StatusInProgress || next.Terminal()
	default:
		return false
	}
}

type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// Record is the status snapshot for one task. Every update replaces it whole.
type Record struct {
	Status            TaskStatus     `json:"status"`
	Details           string         `json:"details"`
	RepoURL           string         `json:"repo_url,omitempty"`
	PagesURL          string         `json:"pages_url,omitempty"`
	CommitSHA         string         `json:"commit_sha,omitempty"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status,omitempty"`
	AttachmentsFailed []string       `json:"attachments_failed,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func Pending(details string) Record {
	return Record{Status: StatusPending, Details: details}
}

func InProgress(details string) Record {
	return Record{Status: StatusInProgress, Details: details}
}

func Failed(details string) Record {
	return Record{Status: StatusFailed, Details: details}
}
