package obligation

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Template is a reusable obligation definition, owned either globally by a
// regulator catalog or by a single organization.
type Template struct {
	ID             string         `json:"id" yaml:"id"`
	OwnerType      OwnerType      `json:"owner_type" yaml:"owner_type"`
	OrganizationID *string        `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
	Scope          SubjectType    `json:"scope" yaml:"scope"`
	ComplianceType ComplianceType `json:"compliance_type" yaml:"compliance_type"`

	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	LegalReference string `json:"legal_reference,omitempty" yaml:"legal_reference,omitempty"`
	SourceURL      string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Notes          string `json:"notes,omitempty" yaml:"notes,omitempty"`

	RecurrenceUnit     RecurrenceUnit `json:"recurrence_unit" yaml:"recurrence_unit"`
	RecurrenceEvery    int            `json:"recurrence_every" yaml:"recurrence_every"`
	Recurring          bool           `json:"recurring" yaml:"recurring"`
	FirstDueOffsetDays int            `json:"first_due_offset_days" yaml:"first_due_offset_days"`
	Anchor             AnchorKind     `json:"anchor" yaml:"anchor"`

	Region        string     `json:"region,omitempty" yaml:"region,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty" yaml:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
	Active        bool       `json:"active" yaml:"active"`

	// ReminderDaysBefore lists the reminder lead times materialized on every
	// new instance. Nil means the engine default applies.
	ReminderDaysBefore []int `json:"reminder_days_before,omitempty" yaml:"reminder_days_before,omitempty"`

	// OverridesTemplateID lets an ORG template shadow a GLOBAL template
	// regardless of title.
	OverridesTemplateID *string `json:"overrides_template_id,omitempty" yaml:"overrides_template_id,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// OrgID returns the owning organization id, or "" for GLOBAL templates.
func (t *Template) OrgID() string {
	if t.OrganizationID == nil {
		return ""
	}
	return *t.OrganizationID
}

// Recurrence returns the template's recurrence rule.
func (t *Template) Recurrence() Recurrence {
	return Recurrence{Unit: t.RecurrenceUnit, Every: t.RecurrenceEvery}
}

// AnchorVariant returns the resolver for the template's anchor.
func (t *Template) AnchorVariant() (Anchor, error) {
	return AnchorFor(t.Anchor)
}

// Validate checks the template's structural invariants.
func (t *Template) Validate() error {
	if t == nil {
		return errors.Validation("template is required")
	}
	switch t.OwnerType {
	case OwnerGlobal:
		if t.OrgID() != "" {
			return errors.Validation("global template must not have an organization")
		}
		if t.OverridesTemplateID != nil {
			return errors.Validation("only organization templates may override another template")
		}
	case OwnerOrg:
		if t.OrgID() == "" {
			return errors.Validation("organization template requires an organization id")
		}
	default:
		return errors.Validation("invalid owner type").WithDetailf("owner_type=%q", t.OwnerType)
	}
	if !t.Scope.IsValid() {
		return errors.Validation("invalid template scope").WithDetailf("scope=%q", t.Scope)
	}
	if !t.ComplianceType.IsValid() {
		return errors.Validation("invalid compliance type").WithDetailf("compliance_type=%q", t.ComplianceType)
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.Validation("template title is required")
	}
	if err := t.Recurrence().Validate(); err != nil {
		return err
	}
	if !t.Anchor.IsValid() {
		return errors.Validation("invalid anchor").WithDetailf("anchor=%q", t.Anchor)
	}
	if t.EffectiveFrom != nil && t.EffectiveTo != nil && t.EffectiveTo.Before(*t.EffectiveFrom) {
		return errors.Validation("effective_to must not precede effective_from")
	}
	if err := ValidateReminderDays(t.ReminderDaysBefore); err != nil {
		return err
	}
	if t.OverridesTemplateID != nil && t.ID != "" && *t.OverridesTemplateID == t.ID {
		return errors.Validation("template cannot override itself")
	}
	return nil
}

// IsEffectiveOn reports whether asOf falls inside the validity window.
// Missing bounds are open.
func (t *Template) IsEffectiveOn(asOf time.Time) bool {
	day := common.DateOf(asOf)
	if t.EffectiveFrom != nil && day.Before(common.DateOf(*t.EffectiveFrom)) {
		return false
	}
	if t.EffectiveTo != nil && day.After(common.DateOf(*t.EffectiveTo)) {
		return false
	}
	return true
}

// AppliesToRegion reports whether a GLOBAL template reaches an organization
// located in orgRegion. An empty template region means nationwide.
func (t *Template) AppliesToRegion(orgRegion string) bool {
	if t.Region == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(t.Region), strings.TrimSpace(orgRegion))
}

// NormalizedTitle is the key used for title-based shadowing.
func (t *Template) NormalizedTitle() string {
	return NormalizeTitle(t.Title)
}

// NormalizeTitle applies NFKC normalization, collapses whitespace and case
// folds s.
func NormalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// CheckEdit validates replacing t with updated. Ownership never changes, and
// the recurrence unit and anchor are frozen once instanceCount > 0 because
// issued instances were computed from them.
func (t *Template) CheckEdit(updated *Template, instanceCount int64) error {
	if err := updated.Validate(); err != nil {
		return err
	}
	if updated.OwnerType != t.OwnerType || updated.OrgID() != t.OrgID() {
		return errors.Validation("template ownership cannot be changed").WithDetailf("template_id=%s", t.ID)
	}
	if updated.Scope != t.Scope && instanceCount > 0 {
		return errors.InvariantViolation("template scope is immutable once instances exist").
			WithDetailf("template_id=%s instances=%d", t.ID, instanceCount)
	}
	if instanceCount == 0 {
		return nil
	}
	if updated.RecurrenceUnit != t.RecurrenceUnit {
		return errors.InvariantViolation("recurrence unit is immutable once instances exist").
			WithDetailf("template_id=%s from=%s to=%s", t.ID, t.RecurrenceUnit, updated.RecurrenceUnit)
	}
	if updated.Anchor != t.Anchor {
		return errors.InvariantViolation("anchor is immutable once instances exist").
			WithDetailf("template_id=%s from=%s to=%s", t.ID, t.Anchor, updated.Anchor)
	}
	return nil
}

// ValidateReminderDays rejects negative and duplicate lead times.
func ValidateReminderDays(days []int) error {
	seen := make(map[int]struct{}, len(days))
	for _, d := range days {
		if d < 0 {
			return errors.Validation("reminder days_before must be >= 0").WithDetailf("days_before=%d", d)
		}
		if _, dup := seen[d]; dup {
			return errors.Validation("reminder days_before values must be unique").WithDetailf("days_before=%d", d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// SortTemplates orders templates by compliance type, normalized title and id.
func SortTemplates(ts []*Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.ComplianceType != b.ComplianceType {
			return a.ComplianceType < b.ComplianceType
		}
		at, bt := a.NormalizedTitle(), b.NormalizedTitle()
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	})
}

//Personal.AI order the ending
