package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// mockService
// ─────────────────────────────────────────────────────────────────────────────

type mockService struct {
	mock.Mock
}

var _ app.Service = (*mockService)(nil)

func (m *mockService) GetApplicableTemplates(ctx context.Context, orgID string, scope domain.SubjectType, asOf time.Time) ([]*domain.Template, error) {
	args := m.Called(ctx, orgID, scope, asOf)
	ts, _ := args.Get(0).([]*domain.Template)
	return ts, args.Error(1)
}

func (m *mockService) EnsureInstancesForSubject(ctx context.Context, req *app.EnsureRequest) ([]*domain.Instance, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).([]*domain.Instance)
	return out, args.Error(1)
}

func (m *mockService) MarkDone(ctx context.Context, id string, at time.Time) (*domain.CompletionResult, error) {
	args := m.Called(ctx, id, at)
	out, _ := args.Get(0).(*domain.CompletionResult)
	return out, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, id string) (*domain.Instance, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*domain.Instance)
	return out, args.Error(1)
}

func (m *mockService) ListInstances(ctx context.Context, orgID string, f app.ListFilter, page, limit int) (*common.PaginatedResult[*domain.Instance], error) {
	args := m.Called(ctx, orgID, f, page, limit)
	out, _ := args.Get(0).(*common.PaginatedResult[*domain.Instance])
	return out, args.Error(1)
}

func (m *mockService) DueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*domain.Reminder, error) {
	args := m.Called(ctx, orgID, asOf)
	out, _ := args.Get(0).([]*domain.Reminder)
	return out, args.Error(1)
}

func (m *mockService) MarkReminderTriggered(ctx context.Context, id string, at time.Time) (*domain.Reminder, bool, error) {
	args := m.Called(ctx, id, at)
	out, _ := args.Get(0).(*domain.Reminder)
	return out, args.Bool(1), args.Error(2)
}

func (m *mockService) SaveTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	args := m.Called(ctx, t)
	out, _ := args.Get(0).(*domain.Template)
	return out, args.Error(1)
}

func (m *mockService) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*domain.Template)
	return out, args.Error(1)
}

func (m *mockService) CreateAdHocInstance(ctx context.Context, req *app.AdHocInstanceRequest) (*domain.Instance, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*domain.Instance)
	return out, args.Error(1)
}

func (m *mockService) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*domain.Instance)
	return out, args.Error(1)
}

func (m *mockService) ReconcileOverdue(ctx context.Context, orgID string) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

func (m *mockService) RetryPendingRegenerations(ctx context.Context, limit int) (*app.RegenerationReport, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).(*app.RegenerationReport)
	return out, args.Error(1)
}

func (m *mockService) Classify(*domain.Instance) domain.Urgency { return domain.UrgencyNormal }

func (m *mockService) Today() time.Time { return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC) }

// ─────────────────────────────────────────────────────────────────────────────
// fakes
// ─────────────────────────────────────────────────────────────────────────────

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) ReconcileAll(ctx context.Context) (*app.JobReport, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*app.JobReport)
	return out, args.Error(1)
}

func (m *mockJobs) DispatchReminders(ctx context.Context, asOf time.Time) (*app.JobReport, error) {
	args := m.Called(ctx, asOf)
	out, _ := args.Get(0).(*app.JobReport)
	return out, args.Error(1)
}

type recordingOrgs struct {
	upserted []*repositories.Organization
}

func (r *recordingOrgs) Upsert(_ context.Context, org *repositories.Organization) error {
	r.upserted = append(r.upserted, org)
	return nil
}

type fakeBackend struct {
	svc    *mockService
	jobs   *mockJobs
	orgs   *recordingOrgs
	closed int
}

func (b *fakeBackend) Service() app.Service             { return b.svc }
func (b *fakeBackend) Jobs() JobRunner                  { return b.jobs }
func (b *fakeBackend) Organizations() OrganizationStore { return b.orgs }
func (b *fakeBackend) Close()                           { b.closed++ }

type fakeMigrator struct {
	ups, downs int
	forced     *int
	version    uint
	dirty      bool
	err        error
}

func (m *fakeMigrator) Up() error            { m.ups++; return m.err }
func (m *fakeMigrator) Down(steps int) error { m.downs += steps; return m.err }
func (m *fakeMigrator) Status() (uint, bool, error) {
	return m.version, m.dirty, m.err
}
func (m *fakeMigrator) Force(v int) error { m.forced = &v; return m.err }

// ─────────────────────────────────────────────────────────────────────────────
// harness
// ─────────────────────────────────────────────────────────────────────────────

type harness struct {
	backend  *fakeBackend
	migrator *fakeMigrator
	opened   int
}

func newHarness() *harness {
	return &harness{
		backend:  &fakeBackend{svc: &mockService{}, jobs: &mockJobs{}, orgs: &recordingOrgs{}},
		migrator: &fakeMigrator{},
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		LoadConfig: func(string) (*config.Config, error) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, nil
		},
		OpenBackend: func(context.Context, *config.Config, logging.Logger) (Backend, error) {
			h.opened++
			return h.backend, nil
		},
		NewMigrator: func(*config.Config) Migrator { return h.migrator },
	}
}

// run executes complyctl with args and returns stdout. The backend is closed
// the way Execute does.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(h.deps())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", "test.yaml"}, args...))

	executed, err := root.ExecuteC()
	closeBackend(executed)
	return out.String(), err
}

func date(s string) time.Time {
	d, err := common.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

//Personal.AI order the ending
