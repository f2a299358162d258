// Package obligation implements the compliance obligation scheduling engine:
// template resolution, due-date arithmetic, deadline instance generation, the
// instance status state machine, reminder planning and urgency
// classification. All dates handled here are calendar dates stored as
// midnight UTC.
package obligation

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// OwnerType tells whether a template is regulator-defined or organization-authored.
type OwnerType string

const (
	OwnerGlobal OwnerType = "GLOBAL"
	OwnerOrg    OwnerType = "ORG"
)

// IsValid reports whether o is a known owner type.
func (o OwnerType) IsValid() bool {
	return o == OwnerGlobal || o == OwnerOrg
}

// SubjectType is the kind of entity an obligation attaches to. Templates use
// it as their scope.
type SubjectType string

const (
	SubjectPerson    SubjectType = "PERSON"
	SubjectStructure SubjectType = "STRUCTURE"
	SubjectRole      SubjectType = "ROLE"
)

// IsValid reports whether s is a known subject type.
func (s SubjectType) IsValid() bool {
	switch s {
	case SubjectPerson, SubjectStructure, SubjectRole:
		return true
	}
	return false
}

// ParseSubjectType parses a subject type case-insensitively.
func ParseSubjectType(s string) (SubjectType, error) {
	st := SubjectType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", errors.Validation("invalid subject type").WithDetailf("value=%q", s)
	}
	return st, nil
}

// ComplianceType is an informational category tag.
type ComplianceType string

const (
	ComplianceTraining       ComplianceType = "TRAINING"
	ComplianceMaintenance    ComplianceType = "MAINTENANCE"
	ComplianceInspection     ComplianceType = "INSPECTION"
	ComplianceDocument       ComplianceType = "DOCUMENT"
	ComplianceReporting      ComplianceType = "REPORTING"
	ComplianceWaste          ComplianceType = "WASTE"
	ComplianceDataProtection ComplianceType = "DATA_PROTECTION"
	ComplianceInsurance      ComplianceType = "INSURANCE"
	ComplianceOther          ComplianceType = "OTHER"
)

// IsValid reports whether c is a known compliance type.
func (c ComplianceType) IsValid() bool {
	switch c {
	case ComplianceTraining, ComplianceMaintenance, ComplianceInspection, ComplianceDocument,
		ComplianceReporting, ComplianceWaste, ComplianceDataProtection, ComplianceInsurance, ComplianceOther:
		return true
	}
	return false
}

// RecurrenceUnit is the calendar unit a recurring obligation repeats in.
type RecurrenceUnit string

const (
	UnitDay   RecurrenceUnit = "DAY"
	UnitMonth RecurrenceUnit = "MONTH"
	UnitYear  RecurrenceUnit = "YEAR"
)

// IsValid reports whether u is a known recurrence unit.
func (u RecurrenceUnit) IsValid() bool {
	switch u {
	case UnitDay, UnitMonth, UnitYear:
		return true
	}
	return false
}

// AnchorKind names the event a due date is computed relative to.
type AnchorKind string

const (
	AnchorAssignmentStart AnchorKind = "ASSIGNMENT_START"
	AnchorHireDate        AnchorKind = "HIRE_DATE"
	AnchorLastCompletion  AnchorKind = "LAST_COMPLETION"
	AnchorCustom          AnchorKind = "CUSTOM"
)

// Status is the persisted state of a deadline instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDone      Status = "DONE"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDone, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether an instance in status s still awaits completion.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusOverdue
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", errors.Validation("invalid status").WithDetailf("value=%q", s)
	}
	return st, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Subject
// ─────────────────────────────────────────────────────────────────────────────

// Subject identifies the entity an instance belongs to.
type Subject struct {
	OrganizationID string      `json:"organization_id"`
	Type           SubjectType `json:"subject_type"`
	ID             string      `json:"subject_id"`
	// StructureID is the structure the subject is assigned to, if any.
	StructureID string `json:"structure_id,omitempty"`
}

// Validate checks the subject's identifying fields.
func (s Subject) Validate() error {
	if s.OrganizationID == "" {
		return errors.Validation("organization id is required")
	}
	if !s.Type.IsValid() {
		return errors.Validation("invalid subject type").WithDetailf("value=%q", s.Type)
	}
	if s.ID == "" {
		return errors.Validation("subject id is required")
	}
	return nil
}

func (s Subject) String() string {
	return fmt.Sprintf("%s/%s", s.Type, s.ID)
}

// SubjectAnchors carries the reference dates known for a subject. Each anchor
// variant reads the field it needs.
type SubjectAnchors struct {
	AssignmentStart *time.Time `json:"assignment_start,omitempty"`
	HireDate        *time.Time `json:"hire_date,omitempty"`
	LastCompletion  *time.Time `json:"last_completion,omitempty"`
	Custom          *time.Time `json:"custom,omitempty"`
}

//Personal.AI order the ending
