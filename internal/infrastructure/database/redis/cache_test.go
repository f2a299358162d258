package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ComplyTrack/pkg/errors"
)

func sampleTemplates() []*domain.Template {
	return []*domain.Template{
		{
			ID:                 "tpl-fire-drill",
			OwnerType:          domain.OwnerGlobal,
			Scope:              domain.SubjectStructure,
			ComplianceType:     domain.ComplianceInspection,
			Title:              "Fire drill",
			RecurrenceUnit:     domain.UnitYear,
			RecurrenceEvery:    1,
			Recurring:          true,
			FirstDueOffsetDays: 30,
			Anchor:             domain.AnchorAssignmentStart,
			Active:             true,
			ReminderDaysBefore: []int{30, 7},
		},
	}
}

type TemplateCacheSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache *TemplateCache
}

func (s *TemplateCacheSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := NewClientFromUniversal(db, "ct:", logging.NewNopLogger())
	s.cache = NewTemplateCache(client, WithTTL(time.Minute))
}

func (s *TemplateCacheSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *TemplateCacheSuite) TestGetTemplates_Hit() {
	want := sampleTemplates()
	raw, err := json.Marshal(want)
	s.Require().NoError(err)
	s.mock.ExpectGet("ct:templates:org-1:STRUCTURE:2024-06-10").SetVal(string(raw))

	got, ok, err := s.cache.GetTemplates(context.Background(), "templates:org-1:STRUCTURE:2024-06-10")
	s.Require().NoError(err)
	s.True(ok)
	s.Require().Len(got, 1)
	s.Equal("tpl-fire-drill", got[0].ID)
	s.Equal([]int{30, 7}, got[0].ReminderDaysBefore)
}

func (s *TemplateCacheSuite) TestGetTemplates_EmptySetIsHit() {
	s.mock.ExpectGet("ct:k").SetVal("[]")

	got, ok, err := s.cache.GetTemplates(context.Background(), "k")
	s.Require().NoError(err)
	s.True(ok)
	s.NotNil(got)
	s.Empty(got)
}

func (s *TemplateCacheSuite) TestGetTemplates_Miss() {
	s.mock.ExpectGet("ct:k").RedisNil()

	got, ok, err := s.cache.GetTemplates(context.Background(), "k")
	s.NoError(err)
	s.False(ok)
	s.Nil(got)
}

func (s *TemplateCacheSuite) TestGetTemplates_Error() {
	s.mock.ExpectGet("ct:k").SetErr(errors.New("connection reset"))

	_, ok, err := s.cache.GetTemplates(context.Background(), "k")
	s.Error(err)
	s.False(ok)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *TemplateCacheSuite) TestGetTemplates_CorruptEntryIsDropped() {
	s.mock.ExpectGet("ct:k").SetVal("{not json")
	s.mock.ExpectDel("ct:k").SetVal(1)

	got, ok, err := s.cache.GetTemplates(context.Background(), "k")
	s.NoError(err)
	s.False(ok)
	s.Nil(got)
}

func (s *TemplateCacheSuite) TestInvalidatePrefix_WalksCursor() {
	s.mock.ExpectScan(0, "ct:templates:org-1:*", scanBatch).SetVal([]string{"ct:templates:org-1:PERSON:2024-06-10"}, 7)
	s.mock.ExpectDel("ct:templates:org-1:PERSON:2024-06-10").SetVal(1)
	s.mock.ExpectScan(7, "ct:templates:org-1:*", scanBatch).SetVal([]string{}, 0)

	s.NoError(s.cache.InvalidatePrefix(context.Background(), "templates:org-1:"))
}

func (s *TemplateCacheSuite) TestInvalidatePrefix_ScanError() {
	s.mock.ExpectScan(0, "ct:templates:*", scanBatch).SetErr(errors.New("boom"))

	err := s.cache.InvalidatePrefix(context.Background(), "templates:")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func TestTemplateCacheSuite(t *testing.T) {
	suite.Run(t, new(TemplateCacheSuite))
}

func TestTemplateCache_SetThenGet(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewTemplateCache(client, WithTTL(10*time.Minute))
	ctx := context.Background()

	require.NoError(t, cache.SetTemplates(ctx, "templates:org-1:STRUCTURE:2024-06-10", sampleTemplates()))

	ttl := mr.TTL("ct:templates:org-1:STRUCTURE:2024-06-10")
	assert.GreaterOrEqual(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	got, ok, err := cache.GetTemplates(ctx, "templates:org-1:STRUCTURE:2024-06-10")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UnitYear, got[0].RecurrenceUnit)
}

func TestTemplateCache_SetNilCachesEmptySet(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewTemplateCache(client)
	ctx := context.Background()

	require.NoError(t, cache.SetTemplates(ctx, "k", nil))
	got, ok, err := cache.GetTemplates(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestTemplateCache_InvalidatePrefixLeavesOtherOrgs(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewTemplateCache(client)
	ctx := context.Background()

	for _, k := range []string{
		"templates:org-1:PERSON:2024-06-10",
		"templates:org-1:STRUCTURE:2024-06-10",
		"templates:org-2:PERSON:2024-06-10",
	} {
		require.NoError(t, cache.SetTemplates(ctx, k, sampleTemplates()))
	}

	require.NoError(t, cache.InvalidatePrefix(ctx, domain.TemplateCacheOrgPrefix("org-1")))

	assert.False(t, mr.Exists("ct:templates:org-1:PERSON:2024-06-10"))
	assert.False(t, mr.Exists("ct:templates:org-1:STRUCTURE:2024-06-10"))
	assert.True(t, mr.Exists("ct:templates:org-2:PERSON:2024-06-10"))
}

//Personal.AI order the ending
