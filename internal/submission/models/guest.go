package models

import (
	"time"

	"github.com/google/uuid"

	"staygate/pkg/platform/sentinel"
)

// Status tracks gateway delivery of one guest stay record.
type Status string

const (
	// StatusPending is the initial state on guest creation.
	StatusPending Status = "pending"
	// StatusSent means the gateway accepted the submission.
	StatusSent Status = "sent"
	// StatusError marks a failed attempt; the record stays eligible for
	// retry.
	StatusError Status = "error"
	// StatusConfirmed is reached only through the external confirmation
	// hook, never by the submission pipeline itself.
	StatusConfirmed Status = "confirmed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusError, StatusConfirmed:
		return true
	}
	return false
}

// Submittable reports whether a record in this status may be (re)submitted.
func (s Status) Submittable() bool {
	return s == StatusPending || s == StatusError
}

// Guest is one stay record owned by a host. Date fields are kept as the
// strings the CRUD layer persists; the XML builder normalizes them to
// YYYY-MM-DD at submission time.
type Guest struct {
	ID             uuid.UUID
	HostID         string
	FirstName      string
	Surname        string
	DateOfBirth    string
	Nationality    string
	DocumentNumber string
	ArrivalDate    string
	DepartureDate  string

	Status          Status
	SubmittedAt     *time.Time
	GovSubmissionID *string
	CreatedAt       time.Time
}

// MarkSent applies the success transition. Only pending and error records
// may transition; sent implies SubmittedAt and GovSubmissionID are set.
func (g *Guest) MarkSent(at time.Time, govSubmissionID string) error {
	if !g.Status.Submittable() {
		return sentinel.ErrInvalidState
	}
	g.Status = StatusSent
	g.SubmittedAt = &at
	g.GovSubmissionID = &govSubmissionID
	return nil
}

// MarkError applies the failure transition, recording the attempt time.
func (g *Guest) MarkError(at time.Time) error {
	if !g.Status.Submittable() {
		return sentinel.ErrInvalidState
	}
	g.Status = StatusError
	g.SubmittedAt = &at
	return nil
}

// Confirm applies the externally triggered confirmation. Only a sent record
// with a matching gateway submission id can be confirmed.
func (g *Guest) Confirm(govSubmissionID string) error {
	if g.Status != StatusSent {
		return sentinel.ErrInvalidState
	}
	if g.GovSubmissionID == nil || *g.GovSubmissionID != govSubmissionID {
		return sentinel.ErrInvalidState
	}
	g.Status = StatusConfirmed
	return nil
}
