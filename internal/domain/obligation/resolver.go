package obligation

import (
	"context"
	"time"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// TemplateCachePrefix is the key prefix of every resolved-template entry.
const TemplateCachePrefix = "templates:"

// TemplateCacheKey is the cache key of a resolution.
func TemplateCacheKey(orgID string, scope SubjectType, asOf time.Time) string {
	return TemplateCacheOrgPrefix(orgID) + string(scope) + ":" + common.FormatDate(common.DateOf(asOf))
}

// TemplateCacheOrgPrefix covers every cached resolution of one organization.
func TemplateCacheOrgPrefix(orgID string) string {
	return TemplateCachePrefix + orgID + ":"
}

// TemplateResolver computes the effective template set for an organization
// and subject scope.
type TemplateResolver struct {
	templates TemplateRepository
	orgs      OrganizationDirectory
	cache     TemplateCache
	opts      options
}

// NewTemplateResolver builds a resolver. cache may be nil.
func NewTemplateResolver(templates TemplateRepository, orgs OrganizationDirectory, cache TemplateCache, opts ...Option) *TemplateResolver {
	return &TemplateResolver{
		templates: templates,
		orgs:      orgs,
		cache:     cache,
		opts:      applyOptions(opts),
	}
}

// Resolve returns the templates applicable to scope within orgID on asOf,
// ordered by compliance type then title.
func (r *TemplateResolver) Resolve(ctx context.Context, orgID string, scope SubjectType, asOf time.Time) ([]*Template, error) {
	if orgID == "" {
		return nil, errors.Validation("organization id is required")
	}
	if !scope.IsValid() {
		return nil, errors.Validation("invalid subject scope").WithDetailf("scope=%q", scope)
	}
	log := r.opts.logger.With(logging.String(logging.KeyOrganizationID, orgID), logging.String("scope", string(scope)))

	key := TemplateCacheKey(orgID, scope, asOf)
	if r.cache != nil {
		cached, ok, err := r.cache.GetTemplates(ctx, key)
		if err != nil {
			log.Warn("template cache read failed", logging.Err(err))
		} else if ok {
			return cached, nil
		}
	}

	region, err := r.orgs.Region(ctx, orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to load organization region")
	}
	candidates, err := r.templates.ListCandidateTemplates(ctx, orgID, scope)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to list candidate templates")
	}

	resolved := SelectApplicable(candidates, orgID, region, scope, asOf)
	log.Debug("templates resolved",
		logging.Int("candidates", len(candidates)),
		logging.Int("resolved", len(resolved)))

	if r.cache != nil {
		if err := r.cache.SetTemplates(ctx, key, resolved); err != nil {
			log.Warn("template cache write failed", logging.Err(err))
		}
	}
	return resolved, nil
}

// Invalidate drops cached resolutions affected by a change to t.
func (r *TemplateResolver) Invalidate(ctx context.Context, t *Template) error {
	if r.cache == nil {
		return nil
	}
	prefix := TemplateCachePrefix
	if t != nil && t.OwnerType == OwnerOrg {
		prefix = TemplateCacheOrgPrefix(t.OrgID())
	}
	return r.cache.InvalidatePrefix(ctx, prefix)
}

// SelectApplicable filters candidates down to the effective set.
//
// A candidate qualifies when it is active, in scope, inside its validity
// window on asOf, and either GLOBAL for a matching (or empty) region or owned
// by orgID. An ORG template then shadows any GLOBAL template with the same
// normalized title, and any GLOBAL template it names in OverridesTemplateID.
func SelectApplicable(candidates []*Template, orgID, orgRegion string, scope SubjectType, asOf time.Time) []*Template {
	var globals, owned []*Template
	for _, t := range candidates {
		if t == nil || !t.Active || t.Scope != scope || !t.IsEffectiveOn(asOf) {
			continue
		}
		switch t.OwnerType {
		case OwnerGlobal:
			if t.AppliesToRegion(orgRegion) {
				globals = append(globals, t)
			}
		case OwnerOrg:
			if t.OrgID() == orgID {
				owned = append(owned, t)
			}
		}
	}

	shadowTitles := make(map[string]struct{}, len(owned))
	shadowIDs := make(map[string]struct{})
	for _, t := range owned {
		shadowTitles[t.NormalizedTitle()] = struct{}{}
		if t.OverridesTemplateID != nil {
			shadowIDs[*t.OverridesTemplateID] = struct{}{}
		}
	}

	out := make([]*Template, 0, len(globals)+len(owned))
	for _, t := range globals {
		if _, ok := shadowTitles[t.NormalizedTitle()]; ok {
			continue
		}
		if _, ok := shadowIDs[t.ID]; ok {
			continue
		}
		out = append(out, t)
	}
	out = append(out, owned...)
	SortTemplates(out)
	return out
}

//Personal.AI order the ending
