package obligation_test

import (
	"time"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func strPtr(s string) *string { return &s }

func globalTemplate(id, title string) *obligation.Template {
	return &obligation.Template{
		ID:              id,
		OwnerType:       obligation.OwnerGlobal,
		Scope:           obligation.SubjectPerson,
		ComplianceType:  obligation.ComplianceTraining,
		Title:           title,
		RecurrenceUnit:  obligation.UnitYear,
		RecurrenceEvery: 1,
		Recurring:       true,
		Anchor:          obligation.AnchorHireDate,
		Active:          true,
	}
}

func orgTemplate(id, orgID, title string) *obligation.Template {
	t := globalTemplate(id, title)
	t.OwnerType = obligation.OwnerOrg
	t.OrganizationID = strPtr(orgID)
	return t
}

func person(orgID, id string) obligation.Subject {
	return obligation.Subject{OrganizationID: orgID, Type: obligation.SubjectPerson, ID: id}
}
