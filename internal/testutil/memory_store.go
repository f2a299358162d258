package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// MemoryStore is an in-memory obligation.Repository and
// obligation.OrganizationDirectory for unit tests. Reads and writes copy
// entities so callers cannot mutate stored state behind the store's back.
// WithTx serializes transactions and restores a snapshot when fn fails.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	templates map[string]*obligation.Template
	instances map[string]*obligation.Instance
	reminders map[string]*obligation.Reminder
	regions   map[string]string
	faults    map[string]error

	// BeforeCreate runs ahead of every CreateInstance uniqueness check.
	// Tests use it to slip in a competing insert.
	BeforeCreate func(inst *obligation.Instance)

	candidateCalls int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*obligation.Template),
		instances: make(map[string]*obligation.Instance),
		reminders: make(map[string]*obligation.Reminder),
		regions:   make(map[string]string),
		faults:    make(map[string]error),
	}
}

// AddOrganization registers an organization and its region.
func (s *MemoryStore) AddOrganization(id, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[id] = region
}

// SetFault makes method return err until cleared with a nil err.
func (s *MemoryStore) SetFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// CandidateCalls counts ListCandidateTemplates invocations.
func (s *MemoryStore) CandidateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidateCalls
}

// PutInstance stores inst as-is, bypassing uniqueness checks.
func (s *MemoryStore) PutInstance(inst *obligation.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.Version == 0 {
		inst.Version = 1
	}
	s.instances[inst.ID] = cloneInstance(inst)
}

// AllInstances returns every stored instance ordered by due date.
func (s *MemoryStore) AllInstances() []*obligation.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*obligation.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, cloneInstance(inst))
	}
	sortInstances(out)
	return out
}

func (s *MemoryStore) fault(method string) error {
	return s.faults[method]
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactions
// ─────────────────────────────────────────────────────────────────────────────

type memoryTx struct {
	*MemoryStore
}

func (t memoryTx) WithTx(ctx context.Context, fn func(obligation.Repository) error) error {
	return fn(t)
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(obligation.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.fault("WithTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.snapshot()
	s.mu.Unlock()

	if err := fn(memoryTx{s}); err != nil {
		s.mu.Lock()
		s.restore(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	templates map[string]*obligation.Template
	instances map[string]*obligation.Instance
	reminders map[string]*obligation.Reminder
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		templates: make(map[string]*obligation.Template, len(s.templates)),
		instances: make(map[string]*obligation.Instance, len(s.instances)),
		reminders: make(map[string]*obligation.Reminder, len(s.reminders)),
	}
	for k, v := range s.templates {
		snap.templates[k] = cloneTemplate(v)
	}
	for k, v := range s.instances {
		snap.instances[k] = cloneInstance(v)
	}
	for k, v := range s.reminders {
		snap.reminders[k] = cloneReminder(v)
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.templates = snap.templates
	s.instances = snap.instances
	s.reminders = snap.reminders
}

// ─────────────────────────────────────────────────────────────────────────────
// Organizations
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) Region(ctx context.Context, orgID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Region"); err != nil {
		return "", err
	}
	region, ok := s.regions[orgID]
	if !ok {
		return "", errors.New(errors.ErrCodeOrganizationNotFound, "organization not found").WithDetailf("organization_id=%s", orgID)
	}
	return region, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Templates
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) SaveTemplate(ctx context.Context, t *obligation.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SaveTemplate"); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = string(common.NewID())
	}
	if prev, ok := s.templates[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = time.Now().UTC()
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*obligation.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetTemplate"); err != nil {
		return nil, err
	}
	t, ok := s.templates[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeTemplateNotFound, "obligation template not found").WithDetailf("template_id=%s", id)
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) GetTemplateForUpdate(ctx context.Context, id string) (*obligation.Template, error) {
	return s.GetTemplate(ctx, id)
}

func (s *MemoryStore) ListCandidateTemplates(ctx context.Context, orgID string, scope obligation.SubjectType) ([]*obligation.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidateCalls++
	if err := s.fault("ListCandidateTemplates"); err != nil {
		return nil, err
	}
	var out []*obligation.Template
	for _, t := range s.templates {
		if !t.Active || t.Scope != scope {
			continue
		}
		if t.OwnerType == obligation.OwnerGlobal || t.OrgID() == orgID {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountInstancesForTemplate(ctx context.Context, templateID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CountInstancesForTemplate"); err != nil {
		return 0, err
	}
	var n int64
	for _, inst := range s.instances {
		if inst.TemplateIDValue() == templateID {
			n++
		}
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Instances
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) CreateInstance(ctx context.Context, inst *obligation.Instance, reminders []*obligation.Reminder) error {
	if s.BeforeCreate != nil {
		s.BeforeCreate(inst)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateInstance"); err != nil {
		return err
	}
	if _, ok := s.instances[inst.ID]; ok {
		return errors.New(errors.ErrCodeDuplicateInstance, "instance id already exists").WithDetailf("instance_id=%s", inst.ID)
	}
	for _, other := range s.instances {
		if inst.TemplateID != nil && other.TemplateID != nil &&
			*inst.TemplateID == *other.TemplateID &&
			inst.SubjectID == other.SubjectID &&
			inst.CycleIndex == other.CycleIndex {
			return errors.New(errors.ErrCodeDuplicateInstance, "deadline instance already exists").
				WithDetailf("template_id=%s subject_id=%s cycle=%d", *inst.TemplateID, inst.SubjectID, inst.CycleIndex)
		}
		if inst.PredecessorID != nil && other.PredecessorID != nil && *inst.PredecessorID == *other.PredecessorID {
			return errors.New(errors.ErrCodeDuplicateInstance, "successor already exists").
				WithDetailf("predecessor_id=%s", *inst.PredecessorID)
		}
	}
	inst.Version = 1
	s.instances[inst.ID] = cloneInstance(inst)
	for _, r := range reminders {
		r.InstanceID = inst.ID
		s.reminders[r.ID] = cloneReminder(r)
	}
	return nil
}

func (s *MemoryStore) GetInstance(ctx context.Context, id string) (*obligation.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetInstance"); err != nil {
		return nil, err
	}
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeInstanceNotFound, "deadline instance not found").WithDetailf("instance_id=%s", id)
	}
	return cloneInstance(inst), nil
}

func (s *MemoryStore) GetInstanceForUpdate(ctx context.Context, id string) (*obligation.Instance, error) {
	return s.GetInstance(ctx, id)
}

func (s *MemoryStore) FindLatestInstance(ctx context.Context, templateID, subjectID string) (*obligation.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindLatestInstance"); err != nil {
		return nil, err
	}
	var latest *obligation.Instance
	for _, inst := range s.instances {
		if inst.TemplateIDValue() != templateID || inst.SubjectID != subjectID {
			continue
		}
		if latest == nil || inst.CycleIndex > latest.CycleIndex {
			latest = inst
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneInstance(latest), nil
}

func (s *MemoryStore) FindInstanceByCycle(ctx context.Context, templateID, subjectID string, cycle int) (*obligation.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.TemplateIDValue() == templateID && inst.SubjectID == subjectID && inst.CycleIndex == cycle {
			return cloneInstance(inst), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindSuccessor(ctx context.Context, prior *obligation.Instance) (*obligation.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindSuccessor"); err != nil {
		return nil, err
	}
	for _, inst := range s.instances {
		if inst.PredecessorID != nil && *inst.PredecessorID == prior.ID {
			return cloneInstance(inst), nil
		}
	}
	if prior.TemplateID == nil {
		return nil, nil
	}
	for _, inst := range s.instances {
		if inst.TemplateIDValue() == *prior.TemplateID && inst.SubjectID == prior.SubjectID && inst.CycleIndex == prior.CycleIndex+1 {
			return cloneInstance(inst), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateInstance(ctx context.Context, inst *obligation.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateInstance"); err != nil {
		return err
	}
	cur, ok := s.instances[inst.ID]
	if !ok {
		return errors.New(errors.ErrCodeInstanceNotFound, "deadline instance not found").WithDetailf("instance_id=%s", inst.ID)
	}
	if cur.Version != inst.Version {
		return errors.Conflict("instance was modified concurrently").
			WithDetailf("instance_id=%s expected_version=%d actual_version=%d", inst.ID, inst.Version, cur.Version)
	}
	inst.Version++
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *MemoryStore) ListInstances(ctx context.Context, orgID string, filter obligation.InstanceFilter, opts ...obligation.ListOption) ([]*obligation.Instance, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListInstances"); err != nil {
		return nil, 0, err
	}
	o := obligation.ApplyListOptions(opts...)

	var matched []*obligation.Instance
	for _, inst := range s.instances {
		if inst.OrganizationID == orgID && matchInstance(inst, filter) {
			matched = append(matched, cloneInstance(inst))
		}
	}
	sortInstances(matched)
	total := int64(len(matched))
	if o.Offset >= len(matched) {
		return []*obligation.Instance{}, total, nil
	}
	end := o.Offset + o.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[o.Offset:end], total, nil
}

func matchInstance(inst *obligation.Instance, f obligation.InstanceFilter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if inst.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.OpenOnly && !inst.IsOpen() {
		return false
	}
	if f.SubjectID != "" && inst.SubjectID != f.SubjectID {
		return false
	}
	if f.StructureID != "" && inst.StructureID != f.StructureID {
		return false
	}
	if f.TemplateID != "" && inst.TemplateIDValue() != f.TemplateID {
		return false
	}
	if f.DueFrom != nil && inst.DueDate.Before(*f.DueFrom) {
		return false
	}
	if f.DueTo != nil && inst.DueDate.After(*f.DueTo) {
		return false
	}
	if f.OverdueAsOf != nil {
		overdue := inst.Status == obligation.StatusOverdue ||
			(inst.Status == obligation.StatusPending && inst.DueDate.Before(*f.OverdueAsOf))
		if !overdue {
			return false
		}
	}
	return true
}

func (s *MemoryStore) MarkOverdue(ctx context.Context, orgID string, today time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkOverdue"); err != nil {
		return nil, err
	}
	var ids []string
	for _, inst := range s.instances {
		if inst.OrganizationID == orgID && inst.Status == obligation.StatusPending && inst.DueDate.Before(today) {
			inst.Status = obligation.StatusOverdue
			inst.Version++
			ids = append(ids, inst.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListOrganizationsWithStaleInstances(ctx context.Context, today time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListOrganizationsWithStaleInstances"); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, inst := range s.instances {
		if inst.IsStale(today) {
			set[inst.OrganizationID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *MemoryStore) ListPendingRegeneration(ctx context.Context, limit int) ([]*obligation.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListPendingRegeneration"); err != nil {
		return nil, err
	}
	var out []*obligation.Instance
	for _, inst := range s.instances {
		if inst.PendingRegeneration && inst.Status == obligation.StatusDone {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reminders
// ─────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) GetReminder(ctx context.Context, id string) (*obligation.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeReminderNotFound, "reminder not found").WithDetailf("reminder_id=%s", id)
	}
	return cloneReminder(r), nil
}

func (s *MemoryStore) ListReminders(ctx context.Context, instanceID string) ([]*obligation.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListReminders"); err != nil {
		return nil, err
	}
	var out []*obligation.Reminder
	for _, r := range s.reminders {
		if r.InstanceID == instanceID {
			out = append(out, cloneReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysBefore > out[j].DaysBefore })
	return out, nil
}

func (s *MemoryStore) ListDueReminders(ctx context.Context, orgID string, asOf time.Time) ([]*obligation.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListDueReminders"); err != nil {
		return nil, err
	}
	type due struct {
		r   *obligation.Reminder
		day time.Time
	}
	var hits []due
	for _, r := range s.reminders {
		inst, ok := s.instances[r.InstanceID]
		if !ok || inst.OrganizationID != orgID || !inst.IsOpen() {
			continue
		}
		if r.IsDue(inst.DueDate, asOf) {
			hits = append(hits, due{r: cloneReminder(r), day: inst.DueDate})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].day.Equal(hits[j].day) {
			return hits[i].day.Before(hits[j].day)
		}
		if hits[i].r.DaysBefore != hits[j].r.DaysBefore {
			return hits[i].r.DaysBefore > hits[j].r.DaysBefore
		}
		return hits[i].r.ID < hits[j].r.ID
	})
	out := make([]*obligation.Reminder, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.r)
	}
	return out, nil
}

func (s *MemoryStore) ListOrganizationsWithDueReminders(ctx context.Context, asOf time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListOrganizationsWithDueReminders"); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, r := range s.reminders {
		inst, ok := s.instances[r.InstanceID]
		if ok && inst.IsOpen() && r.IsDue(inst.DueDate, asOf) {
			set[inst.OrganizationID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *MemoryStore) MarkReminderTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkReminderTriggered"); err != nil {
		return false, err
	}
	r, ok := s.reminders[id]
	if !ok {
		return false, errors.New(errors.ErrCodeReminderNotFound, "reminder not found").WithDetailf("reminder_id=%s", id)
	}
	if r.TriggeredAt != nil {
		return false, nil
	}
	ts := at.UTC()
	r.TriggeredAt = &ts
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func cloneTemplate(t *obligation.Template) *obligation.Template {
	c := *t
	c.ReminderDaysBefore = append([]int(nil), t.ReminderDaysBefore...)
	if t.ReminderDaysBefore != nil && c.ReminderDaysBefore == nil {
		c.ReminderDaysBefore = []int{}
	}
	return &c
}

func cloneInstance(i *obligation.Instance) *obligation.Instance {
	c := *i
	return &c
}

func cloneReminder(r *obligation.Reminder) *obligation.Reminder {
	c := *r
	return &c
}

func sortInstances(list []*obligation.Instance) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].DueDate.Equal(list[j].DueDate) {
			return list[i].DueDate.Before(list[j].DueDate)
		}
		return strings.Compare(list[i].ID, list[j].ID) < 0
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// MemoryTemplateCache
// ─────────────────────────────────────────────────────────────────────────────

// MemoryTemplateCache is an unbounded obligation.TemplateCache.
type MemoryTemplateCache struct {
	mu      sync.Mutex
	entries map[string][]*obligation.Template
	Hits    int
	Misses  int
}

// NewMemoryTemplateCache returns an empty cache.
func NewMemoryTemplateCache() *MemoryTemplateCache {
	return &MemoryTemplateCache{entries: make(map[string][]*obligation.Template)}
}

func (c *MemoryTemplateCache) GetTemplates(ctx context.Context, key string) ([]*obligation.Template, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.entries[key]
	if !ok {
		c.Misses++
		return nil, false, nil
	}
	c.Hits++
	return ts, true, nil
}

func (c *MemoryTemplateCache) SetTemplates(ctx context.Context, key string, templates []*obligation.Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = templates
	return nil
}

func (c *MemoryTemplateCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryTemplateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var (
	_ obligation.Repository            = (*MemoryStore)(nil)
	_ obligation.OrganizationDirectory = (*MemoryStore)(nil)
	_ obligation.TemplateCache         = (*MemoryTemplateCache)(nil)
)
