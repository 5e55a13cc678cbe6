package rebalancer

import (
	"context"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/repo"
)

// --- Fakes ---

type fakeCampaigns struct {
	byID        map[uuid.UUID]*domain.Campaign
	deactivated []uuid.UUID
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *c
	copied.Instances = slices.Clone(c.Instances)
	return &copied, nil
}

func (f *fakeCampaigns) ListActiveByInstance(_ context.Context, instanceID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, c := range f.byID {
		if c.Active && slices.Contains(c.Instances, instanceID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeCampaigns) RemoveInstance(_ context.Context, campaignID, instanceID uuid.UUID) (bool, error) {
	c, ok := f.byID[campaignID]
	if !ok {
		return false, nil
	}
	i := slices.Index(c.Instances, instanceID)
	if i < 0 {
		return false, nil
	}
	c.Instances = slices.Delete(c.Instances, i, i+1)
	return true, nil
}

func (f *fakeCampaigns) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	c, ok := f.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.Active = active
	if !active {
		f.deactivated = append(f.deactivated, id)
	}
	return nil
}

type fakeJobs struct {
	detachCounts map[uuid.UUID]int64
	detachCalls  []uuid.UUID
	stranded     []uuid.UUID
}

func (f *fakeJobs) DetachCampaign(_ context.Context, campaignID uuid.UUID) (int64, error) {
	f.detachCalls = append(f.detachCalls, campaignID)
	n := f.detachCounts[campaignID]
	f.detachCounts[campaignID] = 0
	return n, nil
}

func (f *fakeJobs) ListStrandedCampaigns(_ context.Context) ([]uuid.UUID, error) {
	return f.stranded, nil
}

type fakeLocker struct {
	locks int
}

func (f *fakeLocker) WithCampaignLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	f.locks++
	return fn(ctx)
}

type fakeScheduler struct {
	scheduled []uuid.UUID
	instances [][]uuid.UUID
}

func (f *fakeScheduler) ScheduleUnassigned(_ context.Context, c *domain.Campaign) error {
	f.scheduled = append(f.scheduled, c.ID)
	f.instances = append(f.instances, slices.Clone(c.Instances))
	return nil
}

// --- Helpers ---

type fixture struct {
	r         *Rebalancer
	campaigns *fakeCampaigns
	jobs      *fakeJobs
	locker    *fakeLocker
	scheduler *fakeScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		campaigns: &fakeCampaigns{
			byID: make(map[uuid.UUID]*domain.Campaign),
		},
		jobs: &fakeJobs{
			detachCounts: make(map[uuid.UUID]int64),
		},
		locker:    &fakeLocker{},
		scheduler: &fakeScheduler{},
	}

	r, err := New(Config{
		Campaigns: f.campaigns,
		Jobs:      f.jobs,
		Locker:    f.locker,
		Scheduler: f.scheduler,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.r = r
	return f
}

func (f *fixture) addCampaign(active bool, detached int64, instances ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.campaigns.byID[id] = &domain.Campaign{
		ID:        id,
		Active:    active,
		Instances: slices.Clone(instances),
	}
	f.jobs.detachCounts[id] = detached
	return id
}

func lifecycleDelivery(msgType mq.MessageType, instanceID uuid.UUID) *mq.Delivery {
	return &mq.Delivery{
		Message: mq.Message{
			ID:        uuid.New().String(),
			Type:      msgType,
			Payload:   mq.LifecyclePayload{InstanceID: instanceID, At: time.Now()},
			Timestamp: time.Now(),
		},
	}
}

// --- Tests ---

func TestRebalance_RequeuesOverSurvivors(t *testing.T) {
	f := newFixture(t)
	down, survivor := uuid.New(), uuid.New()
	campaignID := f.addCampaign(true, 3, down, survivor)

	if err := f.r.Rebalance(context.Background(), down); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Все живые постановки сняты, instance откреплён
	if len(f.jobs.detachCalls) != 1 || f.jobs.detachCalls[0] != campaignID {
		t.Errorf("expected campaign %s detached, got %v", campaignID, f.jobs.detachCalls)
	}
	got := f.campaigns.byID[campaignID].Instances
	if len(got) != 1 || got[0] != survivor {
		t.Errorf("campaign instances = %v, want only survivor %s", got, survivor)
	}

	// Раздача заново по оставшимся
	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != campaignID {
		t.Fatalf("expected campaign %s rescheduled, got %v", campaignID, f.scheduler.scheduled)
	}
	if len(f.scheduler.instances[0]) != 1 || f.scheduler.instances[0][0] != survivor {
		t.Errorf("rescheduled over %v, want only survivor %s", f.scheduler.instances[0], survivor)
	}
	if f.locker.locks != 1 {
		t.Errorf("expected 1 lock acquisition, got %d", f.locker.locks)
	}
	if f.campaigns.byID[campaignID].Active != true {
		t.Error("campaign with survivors must stay active")
	}
}

func TestRebalance_LastInstancePausesCampaign(t *testing.T) {
	f := newFixture(t)
	down := uuid.New()
	campaignID := f.addCampaign(true, 2, down)

	if err := f.r.Rebalance(context.Background(), down); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.campaigns.byID[campaignID].Active {
		t.Error("campaign without instances must be paused")
	}
	if len(f.scheduler.scheduled) != 0 {
		t.Errorf("nothing to reschedule without instances, got %v", f.scheduler.scheduled)
	}
	// Постановки сняты даже при паузе: в очередях ничего не остаётся
	if len(f.jobs.detachCalls) != 1 {
		t.Errorf("expected 1 detach call, got %d", len(f.jobs.detachCalls))
	}
}

func TestRebalance_DuplicateEventNoop(t *testing.T) {
	f := newFixture(t)
	down, survivor := uuid.New(), uuid.New()
	f.addCampaign(true, 2, down, survivor)

	if err := f.r.Rebalance(context.Background(), down); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.scheduled) != 1 {
		t.Fatalf("expected 1 reschedule, got %d", len(f.scheduler.scheduled))
	}

	// Повторное событие: instance уже откреплён
	f.scheduler.scheduled = nil
	f.jobs.detachCalls = nil
	if err := f.r.Rebalance(context.Background(), down); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.scheduled) != 0 || len(f.jobs.detachCalls) != 0 {
		t.Errorf("duplicate event must be a no-op, scheduled %v, detached %v",
			f.scheduler.scheduled, f.jobs.detachCalls)
	}
}

func TestRebalance_UnknownInstance(t *testing.T) {
	f := newFixture(t)

	if err := f.r.Rebalance(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.scheduled) != 0 {
		t.Error("unknown instance should not trigger rescheduling")
	}
}

func TestReconcile_SkipsInactiveCampaigns(t *testing.T) {
	f := newFixture(t)
	inst := uuid.New()
	active := f.addCampaign(true, 0, inst)
	inactive := f.addCampaign(false, 0, inst)
	f.jobs.stranded = []uuid.UUID{active, inactive, uuid.New()}

	f.r.Reconcile(context.Background())

	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != active {
		t.Errorf("expected only active campaign rescheduled, got %v", f.scheduler.scheduled)
	}
}

func TestHandleLifecycle_InstanceDown(t *testing.T) {
	f := newFixture(t)
	down, survivor := uuid.New(), uuid.New()
	campaignID := f.addCampaign(true, 1, down, survivor)

	err := f.r.handleLifecycle(context.Background(), lifecycleDelivery(mq.MessageTypeInstanceDown, down))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != campaignID {
		t.Errorf("expected campaign %s rescheduled, got %v", campaignID, f.scheduler.scheduled)
	}
}

func TestHandleLifecycle_InstanceUpTriggersReconcile(t *testing.T) {
	f := newFixture(t)
	inst := uuid.New()
	stranded := f.addCampaign(true, 0, inst)
	f.jobs.stranded = []uuid.UUID{stranded}

	err := f.r.handleLifecycle(context.Background(), lifecycleDelivery(mq.MessageTypeInstanceUp, inst))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != stranded {
		t.Errorf("expected campaign %s rescheduled, got %v", stranded, f.scheduler.scheduled)
	}
}

func TestNew_BadCron(t *testing.T) {
	_, err := New(Config{ReconcileCron: "not a cron"})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
