package obligation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/testutil"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

func resolverFixture() []*obligation.Template {
	g1 := globalTemplate("g1", "Fire Safety Training")
	g2 := globalTemplate("g2", "First Aid")
	g2.Region = "BY"
	g3 := globalTemplate("g3", "Data Protection Briefing")
	g3.ComplianceType = obligation.ComplianceDataProtection
	g4 := globalTemplate("g4", "Extinguisher Inspection")
	g4.Scope = obligation.SubjectStructure
	g5 := globalTemplate("g5", "Retired Course")
	g5.Active = false
	g6 := globalTemplate("g6", "Expired Course")
	g6.EffectiveTo = datePtr(2024, 1, 1)
	g7 := globalTemplate("g7", "Hamburg Only")
	g7.Region = "HH"

	o1 := orgTemplate("o1", "org-1", "  fire safety   TRAINING")
	o2 := orgTemplate("o2", "org-1", "In-house Privacy Course")
	o2.ComplianceType = obligation.ComplianceDataProtection
	o2.OverridesTemplateID = strPtr("g3")
	o3 := orgTemplate("o3", "org-2", "Other Org")

	return []*obligation.Template{g1, g2, g3, g4, g5, g6, g7, o1, o2, o3}
}

func ids(ts []*obligation.Template) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestSelectApplicable(t *testing.T) {
	got := obligation.SelectApplicable(resolverFixture(), "org-1", "by", obligation.SubjectPerson, fixedNow)
	assert.Equal(t, []string{"o2", "o1", "g2"}, ids(got))
}

func TestSelectApplicable_NoOrgTemplates(t *testing.T) {
	got := obligation.SelectApplicable(resolverFixture(), "org-3", "", obligation.SubjectPerson, fixedNow)
	assert.Equal(t, []string{"g3", "g1"}, ids(got))
}

func TestSelectApplicable_StructureScope(t *testing.T) {
	got := obligation.SelectApplicable(resolverFixture(), "org-1", "BY", obligation.SubjectStructure, fixedNow)
	assert.Equal(t, []string{"g4"}, ids(got))
}

func TestSelectApplicable_Window(t *testing.T) {
	got := obligation.SelectApplicable(resolverFixture(), "org-3", "", obligation.SubjectPerson, date(2023, 6, 1))
	assert.Contains(t, ids(got), "g6")
}

func TestSelectApplicable_RegionalGlobalDoesNotShadowNationwide(t *testing.T) {
	nationwide := globalTemplate("g-all", "Fire safety")
	regional := globalTemplate("g-by", "Fire Safety")
	regional.Region = "BY"
	elsewhere := globalTemplate("g-be", "Fire safety")
	elsewhere.Region = "BE"

	got := obligation.SelectApplicable([]*obligation.Template{nationwide, regional, elsewhere},
		"org-1", "BY", obligation.SubjectPerson, fixedNow)
	assert.ElementsMatch(t, []string{"g-all", "g-by"}, ids(got))

	local := orgTemplate("o-1", "org-1", "FIRE SAFETY")
	got = obligation.SelectApplicable([]*obligation.Template{nationwide, regional, local},
		"org-1", "BY", obligation.SubjectPerson, fixedNow)
	assert.Equal(t, []string{"o-1"}, ids(got))
}

func newResolverStore(t *testing.T) *testutil.MemoryStore {
	t.Helper()
	store := testutil.NewMemoryStore()
	store.AddOrganization("org-1", "BY")
	store.AddOrganization("org-2", "")
	for _, tp := range resolverFixture() {
		require.NoError(t, store.SaveTemplate(context.Background(), tp))
	}
	return store
}

func TestTemplateResolver_Resolve(t *testing.T) {
	store := newResolverStore(t)
	r := obligation.NewTemplateResolver(store, store, nil)

	got, err := r.Resolve(context.Background(), "org-1", obligation.SubjectPerson, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"o2", "o1", "g2"}, ids(got))
}

func TestTemplateResolver_Errors(t *testing.T) {
	store := newResolverStore(t)
	r := obligation.NewTemplateResolver(store, store, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "", obligation.SubjectPerson, fixedNow)
	assert.True(t, errors.IsValidation(err))

	_, err = r.Resolve(ctx, "org-1", "TEAM", fixedNow)
	assert.True(t, errors.IsValidation(err))

	_, err = r.Resolve(ctx, "missing", obligation.SubjectPerson, fixedNow)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsCode(err, errors.ErrCodeOrganizationNotFound))
}

func TestTemplateResolver_Cache(t *testing.T) {
	store := newResolverStore(t)
	cache := testutil.NewMemoryTemplateCache()
	r := obligation.NewTemplateResolver(store, store, cache)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "org-1", obligation.SubjectPerson, fixedNow)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "org-1", obligation.SubjectPerson, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, 1, store.CandidateCalls())
	assert.Equal(t, 1, cache.Hits)

	_, err = r.Resolve(ctx, "org-2", obligation.SubjectPerson, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, r.Invalidate(ctx, orgTemplate("o9", "org-1", "New")))
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, r.Invalidate(ctx, globalTemplate("g9", "New")))
	assert.Equal(t, 0, cache.Len())
}

func TestTemplateCacheKey(t *testing.T) {
	assert.Equal(t, "templates:org-1:PERSON:2024-06-10",
		obligation.TemplateCacheKey("org-1", obligation.SubjectPerson, fixedNow))
	assert.Equal(t, "templates:org-1:", obligation.TemplateCacheOrgPrefix("org-1"))
}
