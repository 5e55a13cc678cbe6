package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
	"github.com/shaiso/Fanline/internal/mq"
	"github.com/shaiso/Fanline/internal/repo"
)

// --- Fakes ---

type fakeCampaigns struct {
	byID map[uuid.UUID]*domain.Campaign

	// jobs принимает вставку jobs кампании: Create у стора атомарен
	jobs *fakeJobs

	failCreate bool
}

func newFakeCampaigns(jobs *fakeJobs) *fakeCampaigns {
	return &fakeCampaigns{
		byID: make(map[uuid.UUID]*domain.Campaign),
		jobs: jobs,
	}
}

func (f *fakeCampaigns) Create(_ context.Context, c *domain.Campaign, jobs []domain.Job) error {
	if f.failCreate {
		return errors.New("insert failed")
	}
	copied := *c
	f.byID[c.ID] = &copied
	for _, j := range jobs {
		jc := j
		f.jobs.byKey[jobKey(j.RecipientJID, j.CampaignID)] = &jc
	}
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCampaigns) List(_ context.Context) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range f.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCampaigns) ReplaceInstances(_ context.Context, campaignID uuid.UUID, instanceIDs []uuid.UUID) error {
	c, ok := f.byID[campaignID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Instances = instanceIDs
	return nil
}

func (f *fakeCampaigns) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	c, ok := f.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.Active = active
	return nil
}

func (f *fakeCampaigns) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeJobs struct {
	byKey map[string]*domain.Job
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{byKey: make(map[string]*domain.Job)}
}

func jobKey(recipient string, campaignID uuid.UUID) string {
	return recipient + "/" + campaignID.String()
}

func (f *fakeJobs) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	return f.list(campaignID, func(*domain.Job) bool { return true }), nil
}

func (f *fakeJobs) ListUnassigned(_ context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	return f.list(campaignID, func(j *domain.Job) bool {
		return !j.Terminal() && j.InstanceID == nil
	}), nil
}

func (f *fakeJobs) list(campaignID uuid.UUID, keep func(*domain.Job) bool) []domain.Job {
	var out []domain.Job
	for _, j := range f.byKey {
		if j.CampaignID == campaignID && keep(j) {
			out = append(out, *j)
		}
	}
	// Порядок раздачи — по position
	for i := range out {
		for k := i + 1; k < len(out); k++ {
			if out[k].Position < out[i].Position {
				out[i], out[k] = out[k], out[i]
			}
		}
	}
	return out
}

func (f *fakeJobs) Assign(_ context.Context, recipient string, campaignID, instanceID, queueID uuid.UUID) error {
	j, ok := f.byKey[jobKey(recipient, campaignID)]
	if !ok {
		return repo.ErrNotFound
	}
	j.InstanceID = &instanceID
	j.QueueID = &queueID
	return nil
}

func (f *fakeJobs) DetachJob(_ context.Context, recipient string, campaignID uuid.UUID) error {
	j, ok := f.byKey[jobKey(recipient, campaignID)]
	if !ok {
		return repo.ErrNotFound
	}
	j.InstanceID = nil
	j.QueueID = nil
	return nil
}

func (f *fakeJobs) DetachCampaign(_ context.Context, campaignID uuid.UUID) (int64, error) {
	var n int64
	for _, j := range f.byKey {
		if j.CampaignID == campaignID && !j.Terminal() {
			j.InstanceID = nil
			j.QueueID = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) Progress(_ context.Context, campaignID uuid.UUID) (domain.Progress, error) {
	var p domain.Progress
	for _, j := range f.byKey {
		if j.CampaignID != campaignID {
			continue
		}
		p.Total++
		if j.Sent {
			p.Sent++
		}
		if j.Failed {
			p.Failed++
		}
	}
	return p, nil
}

type fakeInstances struct {
	byID map[uuid.UUID]*domain.Instance
}

func newFakeInstances(ids []uuid.UUID, active bool) *fakeInstances {
	f := &fakeInstances{byID: make(map[uuid.UUID]*domain.Instance)}
	for _, id := range ids {
		f.byID[id] = &domain.Instance{ID: id, Active: active}
	}
	return f
}

func (f *fakeInstances) GetByID(_ context.Context, id uuid.UUID) (*domain.Instance, error) {
	inst, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *inst
	return &copied, nil
}

type enqueued struct {
	payload mq.SendPayload
	delay   time.Duration
}

type fakeQueue struct {
	sent    []enqueued
	failAll bool
}

func (f *fakeQueue) EnqueueSend(_ context.Context, payload mq.SendPayload, delay time.Duration) error {
	if f.failAll {
		return errors.New("broker down")
	}
	f.sent = append(f.sent, enqueued{payload: payload, delay: delay})
	return nil
}

type fakeParticipants struct {
	participants []gateway.Participant
	err          error
}

func (f *fakeParticipants) Participants(_ context.Context, _ uuid.UUID, _ string) ([]gateway.Participant, error) {
	return f.participants, f.err
}

type fakeLocker struct {
	locks int
}

func (f *fakeLocker) WithCampaignLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	f.locks++
	return fn(ctx)
}

// --- Helpers ---

type fixture struct {
	svc       *Service
	campaigns *fakeCampaigns
	jobs      *fakeJobs
	instances *fakeInstances
	queue     *fakeQueue
	members   *fakeParticipants
	locker    *fakeLocker
	instIDs   []uuid.UUID
}

func newFixture(t *testing.T, instances int, participants []gateway.Participant) *fixture {
	t.Helper()

	instIDs := make([]uuid.UUID, instances)
	for i := range instIDs {
		instIDs[i] = uuid.New()
	}

	jobs := newFakeJobs()
	f := &fixture{
		campaigns: newFakeCampaigns(jobs),
		jobs:      jobs,
		instances: newFakeInstances(instIDs, true),
		queue:     &fakeQueue{},
		members:   &fakeParticipants{participants: participants},
		locker:    &fakeLocker{},
		instIDs:   instIDs,
	}
	f.svc = New(Config{
		Campaigns:    f.campaigns,
		Jobs:         f.jobs,
		Instances:    f.instances,
		Queue:        f.queue,
		Participants: f.members,
		Locker:       f.locker,
		Logger:       slog.New(slog.DiscardHandler),
		Rand:         rand.New(rand.NewSource(1)),
	})
	return f
}

func members(n int) []gateway.Participant {
	out := make([]gateway.Participant, n)
	for i := range out {
		out[i] = gateway.Participant{JID: fmt.Sprintf("user%d@s.whatsapp.net", i)}
	}
	return out
}

func textParams(instIDs []uuid.UUID) CreateParams {
	return CreateParams{
		TargetChatID: "12345@g.us",
		Messages:     []domain.MessageSpec{{Type: domain.MessageTypeText, Text: "hello"}},
		MinDelaySec:  20,
		MaxDelaySec:  20,
		InstanceIDs:  instIDs,
	}
}

// --- Tests ---

func TestCreate_SchedulesAllRecipients(t *testing.T) {
	f := newFixture(t, 2, members(5))

	c, err := f.svc.Create(context.Background(), textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !c.Active {
		t.Error("campaign should be active after create")
	}
	if f.locker.locks != 1 {
		t.Errorf("expected 1 lock acquisition, got %d", f.locker.locks)
	}

	jobs, _ := f.jobs.ListByCampaign(context.Background(), c.ID)
	if len(jobs) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.InstanceID == nil || j.QueueID == nil {
			t.Fatalf("job %d not assigned", i)
		}
		if want := f.instIDs[i%2]; *j.InstanceID != want {
			t.Errorf("job %d: expected instance %s, got %s", i, want, *j.InstanceID)
		}
	}

	if len(f.queue.sent) != 5 {
		t.Fatalf("expected 5 enqueued sends, got %d", len(f.queue.sent))
	}
	// min == max == 20s — общее расписание 20, 40, ... 100 секунд
	for i, e := range f.queue.sent {
		want := time.Duration(20*(i+1)) * time.Second
		if e.delay != want {
			t.Errorf("send %d: expected delay %v, got %v", i, want, e.delay)
		}
		if e.payload.CampaignID != c.ID {
			t.Errorf("send %d: wrong campaign id", i)
		}
	}
}

func TestCreate_BlockAdmins(t *testing.T) {
	participants := members(4)
	participants[0].IsAdmin = true
	participants[3].IsAdmin = true
	f := newFixture(t, 1, participants)

	params := textParams(f.instIDs)
	params.BlockAdmins = true

	c, err := f.svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, _ := f.jobs.ListByCampaign(context.Background(), c.ID)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs after admin filter, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.RecipientJID == participants[0].JID || j.RecipientJID == participants[3].JID {
			t.Errorf("admin %s should not get a job", j.RecipientJID)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, 1, members(3))

	cases := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"no instances", func(p *CreateParams) { p.InstanceIDs = nil }, ErrNoInstances},
		{"no messages", func(p *CreateParams) { p.Messages = nil }, ErrNoMessages},
		{"inverted delays", func(p *CreateParams) { p.MinDelaySec = 30; p.MaxDelaySec = 10 }, ErrBadDelays},
		{"zero delays", func(p *CreateParams) { p.MinDelaySec = 0; p.MaxDelaySec = 0 }, ErrBadDelays},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := textParams(f.instIDs)
			tc.mutate(&params)
			_, err := f.svc.Create(context.Background(), params)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_NoRecipients(t *testing.T) {
	f := newFixture(t, 1, nil)

	_, err := f.svc.Create(context.Background(), textParams(f.instIDs))
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

func TestStop_DetachesJobs(t *testing.T) {
	f := newFixture(t, 2, members(5))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	got, _ := f.campaigns.GetByID(ctx, c.ID)
	if got.Active {
		t.Error("campaign should be inactive after stop")
	}

	jobs, _ := f.jobs.ListByCampaign(ctx, c.ID)
	for _, j := range jobs {
		if j.QueueID != nil || j.InstanceID != nil {
			t.Errorf("job %s still attached after stop", j.RecipientJID)
		}
	}

	// Повторный stop — ошибка состояния
	if err := f.svc.Stop(ctx, c.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}

func TestStart_ReschedulesRemaining(t *testing.T) {
	f := newFixture(t, 2, members(4))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Двое уже отправлены, затем кампанию остановили
	jobs, _ := f.jobs.ListByCampaign(ctx, c.ID)
	f.jobs.byKey[jobKey(jobs[0].RecipientJID, c.ID)].Sent = true
	f.jobs.byKey[jobKey(jobs[1].RecipientJID, c.ID)].Sent = true
	if err := f.svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	f.queue.sent = nil
	if err := f.svc.Start(ctx, c.ID, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	got, _ := f.campaigns.GetByID(ctx, c.ID)
	if !got.Active {
		t.Error("campaign should be active after start")
	}

	// Переставлены только неотправленные
	if len(f.queue.sent) != 2 {
		t.Fatalf("expected 2 rescheduled sends, got %d", len(f.queue.sent))
	}

	// Повторный start — ошибка состояния
	if err := f.svc.Start(ctx, c.ID, nil); !errors.Is(err, ErrActive) {
		t.Errorf("expected ErrActive, got %v", err)
	}
}

func TestCreate_PersistFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, 1, members(3))
	f.campaigns.failCreate = true

	_, err := f.svc.Create(context.Background(), textParams(f.instIDs))
	if err == nil {
		t.Fatal("expected error from failed persist")
	}

	// Кампания и jobs пишутся одной транзакцией: после сбоя не должно
	// остаться ни видимой кампании, ни её jobs
	all, _ := f.campaigns.List(context.Background())
	if len(all) != 0 {
		t.Errorf("expected no campaigns after failed create, got %d", len(all))
	}
	if len(f.jobs.byKey) != 0 {
		t.Errorf("expected no jobs after failed create, got %d", len(f.jobs.byKey))
	}
}

func TestCreate_NoConnectedInstances(t *testing.T) {
	f := newFixture(t, 2, members(3))
	for _, inst := range f.instances.byID {
		inst.Active = false
	}

	_, err := f.svc.Create(context.Background(), textParams(f.instIDs))
	if !errors.Is(err, ErrInstanceUnavailable) {
		t.Errorf("expected ErrInstanceUnavailable, got %v", err)
	}
}

func TestStart_RequiresConnectedInstance(t *testing.T) {
	f := newFixture(t, 1, members(2))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Все instances кампании отключились
	for _, inst := range f.instances.byID {
		inst.Active = false
	}

	if err := f.svc.Start(ctx, c.ID, nil); !errors.Is(err, ErrInstanceUnavailable) {
		t.Errorf("expected ErrInstanceUnavailable, got %v", err)
	}

	got, _ := f.campaigns.GetByID(ctx, c.ID)
	if got.Active {
		t.Error("campaign must stay stopped when no instance is connected")
	}
}

func TestJobs_ListsRecipientsInOrder(t *testing.T) {
	f := newFixture(t, 1, members(3))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := f.svc.Jobs(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.Position != i {
			t.Errorf("job %d: position = %d", i, j.Position)
		}
		if !j.Live() {
			t.Errorf("job %d: expected live after create", i)
		}
	}
}

func TestJobs_UnknownCampaign(t *testing.T) {
	f := newFixture(t, 1, members(2))

	if _, err := f.svc.Jobs(context.Background(), uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_ReplacesInstances(t *testing.T) {
	f := newFixture(t, 1, members(3))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Новый instance подменяет исходный набор
	replacement := uuid.New()
	f.instances.byID[replacement] = &domain.Instance{ID: replacement, Active: true}

	f.queue.sent = nil
	if err := f.svc.Start(ctx, c.ID, []uuid.UUID{replacement}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	got, _ := f.campaigns.GetByID(ctx, c.ID)
	if len(got.Instances) != 1 || got.Instances[0] != replacement {
		t.Errorf("campaign instances = %v, want only %s", got.Instances, replacement)
	}
	if len(f.queue.sent) != 3 {
		t.Fatalf("expected 3 rescheduled sends, got %d", len(f.queue.sent))
	}
	for i, e := range f.queue.sent {
		if e.payload.InstanceID != replacement {
			t.Errorf("send %d went to %s, want replacement %s", i, e.payload.InstanceID, replacement)
		}
	}

	// Неизвестный instance отклоняется до каких-либо изменений
	if err := f.svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := f.svc.Start(ctx, c.ID, []uuid.UUID{uuid.New()}); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown instance, got %v", err)
	}
}

func TestScheduleUnassigned_NoConnectedInstances(t *testing.T) {
	f := newFixture(t, 2, members(3))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Все instances отключились, jobs сняты с очередей
	for _, inst := range f.instances.byID {
		inst.Active = false
	}
	if _, err := f.jobs.DetachCampaign(ctx, c.ID); err != nil {
		t.Fatalf("detach failed: %v", err)
	}

	f.queue.sent = nil
	if err := f.svc.ScheduleUnassigned(ctx, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.queue.sent) != 0 {
		t.Errorf("expected no sends without connected instances, got %d", len(f.queue.sent))
	}

	unassigned, _ := f.jobs.ListUnassigned(ctx, c.ID)
	if len(unassigned) != 3 {
		t.Errorf("expected 3 unassigned jobs, got %d", len(unassigned))
	}
}

func TestScheduleUnassigned_EnqueueFailureDetaches(t *testing.T) {
	f := newFixture(t, 1, members(2))
	ctx := context.Background()

	f.queue.failAll = true
	_, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err == nil {
		t.Fatal("expected error when broker is down")
	}
}

func TestDelete_RemovesCampaign(t *testing.T) {
	f := newFixture(t, 1, members(2))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.svc.Get(ctx, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t, 1, members(4))
	ctx := context.Background()

	c, err := f.svc.Create(ctx, textParams(f.instIDs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, _ := f.jobs.ListByCampaign(ctx, c.ID)
	f.jobs.byKey[jobKey(jobs[0].RecipientJID, c.ID)].Sent = true
	f.jobs.byKey[jobKey(jobs[1].RecipientJID, c.ID)].Failed = true

	p, err := f.svc.Progress(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Sent != 1 || p.Failed != 1 || p.Total != 4 {
		t.Errorf("expected progress 1/1/4, got %d/%d/%d", p.Sent, p.Failed, p.Total)
	}
	if p.Done() {
		t.Error("campaign should not be done")
	}
}
