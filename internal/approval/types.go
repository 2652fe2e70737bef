// Package approval integrates the approval gateway. The portal only submits
// and reads approvals; decisions happen in the gateway.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxApprovers    = 10
)

// Status is the gateway's approval state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusCanceled Status = "CANCELED"
)

// ParseStatus accepts any casing; the empty string means "any".
func ParseStatus(s string) (Status, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch Status(s) {
	case "", StatusPending, StatusApproved, StatusRejected, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// SubmitRequest is a new approval request.
type SubmitRequest struct {
	Type        string         `json:"approval_type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	RequesterID string         `json:"requester_id"`
	Approvers   []string       `json:"approver_ids"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return errors.New("approval type is required")
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return errors.New("title is required")
	}
	if len(title) > 200 {
		return errors.New("title must be at most 200 characters")
	}
	if strings.TrimSpace(r.RequesterID) == "" {
		return errors.New("requester is required")
	}
	if len(r.Approvers) == 0 || len(r.Approvers) > maxApprovers {
		return fmt.Errorf("between 1 and %d approvers are required", maxApprovers)
	}
	for _, a := range r.Approvers {
		if strings.TrimSpace(a) == "" {
			return errors.New("approver ids must not be empty")
		}
	}
	return nil
}

// Approval is an approval as returned to portal callers.
type Approval struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	RequesterID string     `json:"requester_id"`
	Approvers   []string   `json:"approvers"`
	Comment     string     `json:"comment,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// ListQuery selects a page of approvals. Page is 1-based.
type ListQuery struct {
	Page   int
	Size   int
	Status Status
}

func (q ListQuery) withDefaults() ListQuery {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Size == 0 {
		q.Size = DefaultPageSize
	}
	if st, err := ParseStatus(string(q.Status)); err == nil {
		q.Status = st
	}
	return q
}

func (q ListQuery) Validate() error {
	if q.Page < 1 {
		return errors.New("page must be >= 1")
	}
	if q.Size < 1 || q.Size > MaxPageSize {
		return fmt.Errorf("size must be between 1 and %d", MaxPageSize)
	}
	if _, err := ParseStatus(string(q.Status)); err != nil {
		return err
	}
	return nil
}

func (q ListQuery) offset() int { return (q.Page - 1) * q.Size }

type approvalDTO struct {
	ApprovalID   string   `json:"approval_id"`
	ApprovalType string   `json:"approval_type"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	RequesterID  string   `json:"requester_id"`
	ApproverIDs  []string `json:"approver_ids"`
	Comment      string   `json:"comment"`
	CreatedAt    string   `json:"created_at"`
	DecidedAt    string   `json:"decided_at"`
}

func (d approvalDTO) toApproval() Approval {
	approvers := d.ApproverIDs
	if approvers == nil {
		approvers = []string{}
	}
	return Approval{
		ID:          d.ApprovalID,
		Type:        d.ApprovalType,
		Title:       d.Title,
		Status:      Status(strings.ToUpper(d.Status)),
		RequesterID: d.RequesterID,
		Approvers:   approvers,
		Comment:     d.Comment,
		CreatedAt:   parseTime(d.CreatedAt),
		DecidedAt:   parseTime(d.DecidedAt),
	}
}

// parseTime accepts RFC 3339 and the gateway's compact yyyyMMddHHmmss form.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "20060102150405"} {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
