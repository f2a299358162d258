package obligation

import (
	"time"

	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Anchor resolves the reference date a template's first due date is computed
// from. There is one implementation per AnchorKind.
type Anchor interface {
	Kind() AnchorKind
	Resolve(a SubjectAnchors) (time.Time, error)
	// Rolling reports whether later cycles roll the original schedule forward
	// (true) or restart from the last completion (false).
	Rolling() bool
}

// AssignmentStartAnchor uses the subject's structure-assignment start date.
type AssignmentStartAnchor struct{}

// HireDateAnchor uses the person's hire date.
type HireDateAnchor struct{}

// LastCompletionAnchor uses the most recent completion, falling back to the
// assignment start and then the hire date when no cycle was completed yet.
type LastCompletionAnchor struct{}

// CustomAnchor uses a caller-supplied reference date, which is mandatory.
type CustomAnchor struct{}

func (AssignmentStartAnchor) Kind() AnchorKind { return AnchorAssignmentStart }
func (HireDateAnchor) Kind() AnchorKind        { return AnchorHireDate }
func (LastCompletionAnchor) Kind() AnchorKind  { return AnchorLastCompletion }
func (CustomAnchor) Kind() AnchorKind          { return AnchorCustom }

func (AssignmentStartAnchor) Rolling() bool { return true }
func (HireDateAnchor) Rolling() bool        { return true }
func (LastCompletionAnchor) Rolling() bool  { return false }
func (CustomAnchor) Rolling() bool          { return true }

func (AssignmentStartAnchor) Resolve(a SubjectAnchors) (time.Time, error) {
	return requireDate(a.AssignmentStart, AnchorAssignmentStart)
}

func (HireDateAnchor) Resolve(a SubjectAnchors) (time.Time, error) {
	return requireDate(a.HireDate, AnchorHireDate)
}

func (LastCompletionAnchor) Resolve(a SubjectAnchors) (time.Time, error) {
	for _, d := range []*time.Time{a.LastCompletion, a.AssignmentStart, a.HireDate} {
		if d != nil && !d.IsZero() {
			return common.DateOf(*d), nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeAnchorDateMissing,
		"last completion, assignment start or hire date is required").
		WithDetailf("anchor=%s", AnchorLastCompletion)
}

func (CustomAnchor) Resolve(a SubjectAnchors) (time.Time, error) {
	return requireDate(a.Custom, AnchorCustom)
}

func requireDate(d *time.Time, kind AnchorKind) (time.Time, error) {
	if d == nil || d.IsZero() {
		return time.Time{}, errors.New(errors.ErrCodeAnchorDateMissing, "anchor date is required").
			WithDetailf("anchor=%s", kind)
	}
	return common.DateOf(*d), nil
}

// AnchorFor returns the Anchor variant for kind.
func AnchorFor(kind AnchorKind) (Anchor, error) {
	switch kind {
	case AnchorAssignmentStart:
		return AssignmentStartAnchor{}, nil
	case AnchorHireDate:
		return HireDateAnchor{}, nil
	case AnchorLastCompletion:
		return LastCompletionAnchor{}, nil
	case AnchorCustom:
		return CustomAnchor{}, nil
	}
	return nil, errors.Validation("unknown anchor kind").WithDetailf("anchor=%q", kind)
}

// IsValid reports whether k names a known anchor variant.
func (k AnchorKind) IsValid() bool {
	_, err := AnchorFor(k)
	return err == nil
}

//Personal.AI order the ending
