package obligation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/testutil"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func strPtr(s string) *string { return &s }

type recordingPublisher struct {
	mu     sync.Mutex
	events []app.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...app.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) ofType(t app.EventType) []app.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []app.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	mu            sync.Mutex
	generated     map[string]int
	transitions   map[domain.Status]int
	overdue       int
	dispatched    int
	duplicates    int
	regenOK       int
	regenFailed   int
	publishFailed int
	cacheHits     int
	cacheMisses   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		generated:   make(map[string]int),
		transitions: make(map[domain.Status]int),
	}
}

func (m *recordingMetrics) InstancesGenerated(trigger string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generated[trigger] += n
}

func (m *recordingMetrics) StatusTransition(to domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[to]++
}

func (m *recordingMetrics) OverdueReconciled(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overdue += n
}

func (m *recordingMetrics) ObserveReconcile(time.Duration) {}

func (m *recordingMetrics) RemindersDispatched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched += n
}

func (m *recordingMetrics) DuplicateResolved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates++
}

func (m *recordingMetrics) RegenerationRetried(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.regenOK++
	} else {
		m.regenFailed++
	}
}

func (m *recordingMetrics) EventPublishFailed(app.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishFailed++
}

func (m *recordingMetrics) TemplateCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

type fixture struct {
	store   *testutil.MemoryStore
	pub     *recordingPublisher
	metrics *recordingMetrics
	log     *testutil.MockLogger
	svc     app.Service
}

func defaultConfig() app.Config {
	return app.Config{
		Location:            time.UTC,
		DefaultReminderDays: []int{30, 14, 7, 1},
		UrgentDays:          7,
		SoonDays:            30,
		DefaultPageSize:     20,
		MaxPageSize:         100,
	}
}

func newFixture(t *testing.T, cfg app.Config, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   testutil.NewMemoryStore(),
		pub:     &recordingPublisher{},
		metrics: newRecordingMetrics(),
		log:     testutil.NewMockLogger(),
	}
	f.store.AddOrganization("org-1", "CA")
	f.store.AddOrganization("org-2", "NY")
	base := []app.Option{
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithPublisher(f.pub),
		app.WithMetrics(f.metrics),
		app.WithLogger(f.log),
	}
	f.svc = app.NewService(f.store, f.store, cfg, append(base, opts...)...)
	return f
}

func (f *fixture) saveTemplate(t *testing.T, tmpl *domain.Template) *domain.Template {
	t.Helper()
	saved, err := f.svc.SaveTemplate(context.Background(), tmpl)
	if err != nil {
		t.Fatalf("save template %s: %v", tmpl.Title, err)
	}
	return saved
}

func globalTemplate(id, title string) *domain.Template {
	return &domain.Template{
		ID:                 id,
		OwnerType:          domain.OwnerGlobal,
		Scope:              domain.SubjectPerson,
		ComplianceType:     domain.ComplianceTraining,
		Title:              title,
		RecurrenceUnit:     domain.UnitYear,
		RecurrenceEvery:    1,
		Recurring:          true,
		FirstDueOffsetDays: 30,
		Anchor:             domain.AnchorHireDate,
		Active:             true,
	}
}

func orgTemplate(id, orgID, title string) *domain.Template {
	t := globalTemplate(id, title)
	t.OwnerType = domain.OwnerOrg
	t.OrganizationID = strPtr(orgID)
	return t
}

func personRequest(orgID, id string, hire *time.Time) *app.EnsureRequest {
	return &app.EnsureRequest{
		OrganizationID: orgID,
		SubjectType:    domain.SubjectPerson,
		SubjectID:      id,
		Anchors:        domain.SubjectAnchors{HireDate: hire},
	}
}

func pending(id, orgID string, due time.Time, status domain.Status) *domain.Instance {
	return &domain.Instance{
		ID:             id,
		OrganizationID: orgID,
		SubjectType:    domain.SubjectPerson,
		SubjectID:      "p-" + id,
		Title:          "Item " + id,
		DueDate:        due,
		Status:         status,
		Anchor:         domain.AnchorCustom,
		ScheduleStart:  due,
	}
}
