package sender

import (
	"context"
	"errors"
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

type fakeLedger struct {
	job       *domain.Job
	progress  domain.Progress
	attempts  int
	sent      bool
	failed    bool
	detached  bool
}

func (f *fakeLedger) GetByKey(_ context.Context, _ string, _ uuid.UUID) (*domain.Job, error) {
	if f.job == nil {
		return nil, repo.ErrNotFound
	}
	copied := *f.job
	return &copied, nil
}

func (f *fakeLedger) MarkSent(_ context.Context, _ string, _ uuid.UUID) (bool, error) {
	if f.job != nil && (f.job.Sent || f.job.Failed) {
		return false, nil
	}
	f.sent = true
	f.progress.Sent++
	if f.job != nil {
		f.job.Sent = true
		f.job.QueueID = nil
		f.job.InstanceID = nil
	}
	return true, nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, _ string, _, queueID uuid.UUID) (bool, error) {
	if f.job == nil || f.job.Sent || f.job.Failed ||
		f.job.QueueID == nil || *f.job.QueueID != queueID {
		return false, nil
	}
	f.failed = true
	f.progress.Failed++
	f.job.Failed = true
	f.job.QueueID = nil
	return true, nil
}

func (f *fakeLedger) AddAttempt(_ context.Context, _ string, _ uuid.UUID) error {
	f.attempts++
	return nil
}

func (f *fakeLedger) DetachJob(_ context.Context, _ string, _ uuid.UUID) error {
	f.detached = true
	return nil
}

func (f *fakeLedger) Progress(_ context.Context, _ uuid.UUID) (domain.Progress, error) {
	return f.progress, nil
}

type fakeCampaignSource struct {
	campaign    *domain.Campaign
	deactivated bool
}

func (f *fakeCampaignSource) GetByID(_ context.Context, _ uuid.UUID) (*domain.Campaign, error) {
	if f.campaign == nil {
		return nil, repo.ErrNotFound
	}
	copied := *f.campaign
	return &copied, nil
}

func (f *fakeCampaignSource) SetActive(_ context.Context, _ uuid.UUID, active bool) error {
	f.campaign.Active = active
	if !active {
		f.deactivated = true
	}
	return nil
}

type fakeSession struct {
	connected bool
	sends     []domain.MessageSpec
	failFirst int // сколько первых вызовов Send завершить ошибкой
	calls     int

	// onSend выполняется внутри каждого успешного Send.
	onSend func()
}

func (f *fakeSession) Connect(context.Context) error { return nil }
func (f *fakeSession) Disconnect()                   {}
func (f *fakeSession) Connected() bool               { return f.connected }
func (f *fakeSession) LoggedIn() bool                { return true }
func (f *fakeSession) Phone() string                 { return "" }
func (f *fakeSession) DeviceJID() string             { return "" }
func (f *fakeSession) Events() <-chan gateway.Event  { return nil }
func (f *fakeSession) Close()                        {}

func (f *fakeSession) Send(_ context.Context, _ string, spec domain.MessageSpec, _ time.Duration) error {
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("send failed")
	}
	f.sends = append(f.sends, spec)
	if f.onSend != nil {
		f.onSend()
	}
	return nil
}

func (f *fakeSession) Participants(context.Context, string) ([]gateway.Participant, error) {
	return nil, nil
}

func (f *fakeSession) Groups(context.Context) ([]gateway.Group, error) {
	return nil, nil
}

type fakeSessions struct {
	session *fakeSession
}

func (f *fakeSessions) Get(uuid.UUID) (gateway.Session, bool) {
	if f.session == nil {
		return nil, false
	}
	return f.session, true
}

// --- Helpers ---

type fixture struct {
	sender    *Sender
	ledger    *fakeLedger
	campaigns *fakeCampaignSource
	session   *fakeSession
	payload   mq.SendPayload
	slept     []time.Duration
}

func newFixture(t *testing.T, messages int) *fixture {
	t.Helper()

	campaignID := uuid.New()
	instanceID := uuid.New()
	queueID := uuid.New()

	specs := make([]domain.MessageSpec, messages)
	for i := range specs {
		specs[i] = domain.MessageSpec{Type: domain.MessageTypeText, Text: "msg"}
	}

	f := &fixture{
		ledger: &fakeLedger{
			job: &domain.Job{
				RecipientJID: "user0@s.whatsapp.net",
				CampaignID:   campaignID,
				InstanceID:   &instanceID,
				QueueID:      &queueID,
			},
			progress: domain.Progress{Total: 2},
		},
		campaigns: &fakeCampaignSource{
			campaign: &domain.Campaign{
				ID:                 campaignID,
				Messages:           specs,
				MinDelaySec:        10,
				MaxDelaySec:        10,
				MinMessageDelaySec: 4,
				MaxMessageDelaySec: 4,
				MinTypingSec:       2,
				MaxTypingSec:       2,
				Active:             true,
				Instances:          []uuid.UUID{instanceID},
			},
		},
		session: &fakeSession{connected: true},
		payload: mq.SendPayload{
			CampaignID:   campaignID,
			RecipientJID: "user0@s.whatsapp.net",
			InstanceID:   instanceID,
			QueueID:      queueID,
		},
	}

	f.sender = New(Config{
		Jobs:      f.ledger,
		Campaigns: f.campaigns,
		Sessions:  &fakeSessions{session: f.session},
		Logger:    slog.New(slog.DiscardHandler),
		Rand:      rand.New(rand.NewSource(1)),
	})
	f.sender.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return f
}

func (f *fixture) delivery() *mq.Delivery {
	return &mq.Delivery{
		Message: mq.Message{
			ID:        uuid.New().String(),
			Type:      mq.MessageTypeJobSend,
			Payload:   f.payload,
			Timestamp: time.Now(),
		},
	}
}

// --- Tests ---

func TestHandle_SendsSequence(t *testing.T) {
	f := newFixture(t, 3)

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.session.sends) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(f.session.sends))
	}
	if !f.ledger.sent {
		t.Error("job should be marked sent")
	}
	if f.ledger.attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", f.ledger.attempts)
	}
	// Пауза между сообщениями — 4s, две паузы для трёх сообщений
	if len(f.slept) != 2 {
		t.Fatalf("expected 2 pauses, got %d", len(f.slept))
	}
	for i, d := range f.slept {
		if d != 4*time.Second {
			t.Errorf("pause %d: expected 4s, got %v", i, d)
		}
	}
}

func TestHandle_StaleQueueIDDropped(t *testing.T) {
	f := newFixture(t, 1)
	other := uuid.New()
	f.ledger.job.QueueID = &other

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.session.sends) != 0 {
		t.Errorf("stale delivery should not send, got %d sends", len(f.session.sends))
	}
	if f.ledger.sent || f.ledger.failed {
		t.Error("stale delivery should not touch job status")
	}
}

func TestHandle_TerminalJobDropped(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.job.Sent = true

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.session.sends) != 0 {
		t.Error("terminal job should not send")
	}
}

func TestHandle_MissingJobDropped(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.job = nil

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.session.sends) != 0 {
		t.Error("missing job should not send")
	}
}

func TestHandle_InactiveCampaignDropped(t *testing.T) {
	f := newFixture(t, 1)
	f.campaigns.campaign.Active = false

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.session.sends) != 0 {
		t.Error("inactive campaign should not send")
	}
}

func TestHandle_SessionUnavailableDetaches(t *testing.T) {
	f := newFixture(t, 1)
	f.session.connected = false

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.ledger.detached {
		t.Error("job should be detached when session is down")
	}
	if len(f.session.sends) != 0 {
		t.Error("disconnected session should not send")
	}
}

func TestHandle_RetryThenSuccess(t *testing.T) {
	f := newFixture(t, 1)
	f.session.failFirst = 2

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.ledger.sent {
		t.Error("job should be marked sent after retries")
	}
	if f.ledger.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", f.ledger.attempts)
	}
	// Backoff 1s, затем 2s
	var backoffs []time.Duration
	for _, d := range f.slept {
		if d == time.Second || d == 2*time.Second {
			backoffs = append(backoffs, d)
		}
	}
	if len(backoffs) != 2 {
		t.Errorf("expected 2 backoff pauses, got %d (%v)", len(backoffs), f.slept)
	}
}

func TestHandle_ExhaustedMarksFailed(t *testing.T) {
	f := newFixture(t, 1)
	f.session.failFirst = 100

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.ledger.failed {
		t.Error("job should be marked failed after exhausting retries")
	}
	if f.ledger.sent {
		t.Error("job should not be marked sent")
	}
	if f.ledger.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", f.ledger.attempts)
	}
}

func TestHandle_DetachDuringSendStillMarksSent(t *testing.T) {
	f := newFixture(t, 1)

	// Пока шла отправка, stop/rebalance снял job с очереди
	f.session.onSend = func() {
		f.ledger.job.QueueID = nil
		f.ledger.job.InstanceID = nil
	}

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.ledger.sent {
		t.Fatal("completed send must be recorded despite the detach")
	}

	// Повторная раздача: новая постановка приходит к уже отправленному
	// получателю и должна быть отброшена, иначе сообщение уйдёт дважды
	newQueueID := uuid.New()
	f.ledger.job.QueueID = &newQueueID
	f.payload.QueueID = newQueueID
	f.session.onSend = nil

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.session.sends) != 1 {
		t.Errorf("recipient must receive the campaign exactly once, got %d sends", len(f.session.sends))
	}
}

func TestHandle_CompletesCampaign(t *testing.T) {
	f := newFixture(t, 1)
	// Последний получатель: после него sent+failed == total
	f.ledger.progress = domain.Progress{Sent: 1, Total: 2}

	if err := f.sender.Handle(context.Background(), f.delivery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.campaigns.deactivated {
		t.Error("campaign should be deactivated when all jobs are terminal")
	}
}

func TestBackoff(t *testing.T) {
	f := newFixture(t, 1)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := f.sender.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d): expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
