package lifecycle

import "time"

const (
	StatusPending          = "pending"
	StatusAwaitingApproval = "awaiting_approval"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
)

// ReactivationWindow is the default validity of a reactivation token,
// counted from requestedAt. Overridable via REACTIVATION_WINDOW.
const ReactivationWindow = 7 * 24 * time.Hour

type User struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	CPF                    string     `json:"cpf,omitempty"`
	Phone                  string     `json:"phone,omitempty"`
	Anonymized             bool       `json:"anonymized"`
	AnonymizationReason    string     `json:"anonymizationReason,omitempty"`
	AnonymizedAt           *time.Time `json:"anonymizedAt,omitempty"`
	RevertingAnonymization bool       `json:"revertingAnonymization"`
	AdminRole              string     `json:"adminRole"`
	CreatedAt              time.Time  `json:"createdAt"`
}

type SubmittedData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
	Phone string `json:"phone,omitempty"`
}

type ReactivationRequest struct {
	Token       string         `json:"token"`
	UserID      string         `json:"userId"`
	Status      string         `json:"status"`
	RequestedAt time.Time      `json:"requestedAt"`
	RequestedBy string         `json:"requestedBy"`
	NotifyEmail string         `json:"notifyEmail,omitempty"`
	Submitted   *SubmittedData `json:"submittedData,omitempty"`
	SubmittedAt *time.Time     `json:"submittedAt,omitempty"`
	ApprovedAt  *time.Time     `json:"approvedAt,omitempty"`
	ApprovedBy  string         `json:"approvedBy,omitempty"`
	RejectedAt  *time.Time     `json:"rejectedAt,omitempty"`
	RejectedBy  string         `json:"rejectedBy,omitempty"`
}
