package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/store"
)

// assignmentRepoStub keeps one schedule in memory and applies the same
// compare-and-set transition rules the Postgres repository enforces, so
// concurrent service calls race realistically.
type assignmentRepoStub struct {
	store.Repository

	mu       sync.Mutex
	schedule domain.Schedule
	booking  domain.Booking
	owner    domain.User

	notifications []domain.InAppNotification
}

func newAssignmentRepoStub() *assignmentRepoStub {
	bookingID := uuid.New()
	parentID := uuid.New()
	return &assignmentRepoStub{
		schedule: domain.Schedule{
			ID:               uuid.New(),
			BookingID:        bookingID,
			StartAt:          time.Now().Add(24 * time.Hour),
			EndAt:            time.Now().Add(25 * time.Hour),
			Status:           domain.ScheduleStatusDraft,
			AssignmentStatus: domain.AssignmentStatusUnassigned,
			Version:          1,
		},
		booking: domain.Booking{
			ID:        bookingID,
			Reference: "LS-TEST01",
			ParentID:  parentID,
		},
		owner: domain.User{ID: parentID, Role: domain.RoleParent, FullName: "Test Parent", Email: "parent@example.com"},
	}
}

func (s *assignmentRepoStub) snapshot() domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

func (s *assignmentRepoStub) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	cp := s.snapshot()
	return &cp, nil
}

func (s *assignmentRepoStub) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	cp := s.booking
	return &cp, nil
}

func (s *assignmentRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	cp := s.owner
	return &cp, nil
}

func (s *assignmentRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, item)
	return nil
}

func (s *assignmentRepoStub) OfferSchedule(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule.Status == domain.ScheduleStatusCancelled || s.schedule.Status == domain.ScheduleStatusCompleted {
		return nil, store.ErrScheduleNotEligible
	}
	if s.schedule.AssignmentStatus != domain.AssignmentStatusUnassigned &&
		s.schedule.AssignmentStatus != domain.AssignmentStatusDeclined {
		return nil, store.ErrAlreadyAssigned
	}
	tid := trainerID
	s.schedule.TrainerID = &tid
	s.schedule.AssignmentStatus = domain.AssignmentStatusPending
	s.schedule.DeclineReason = nil
	s.schedule.Version++
	cp := s.schedule
	return &cp, nil
}

func (s *assignmentRepoStub) ConfirmAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule.AssignmentStatus == domain.AssignmentStatusPending &&
		s.schedule.TrainerID != nil && *s.schedule.TrainerID == trainerID {
		s.schedule.AssignmentStatus = domain.AssignmentStatusConfirmed
		s.schedule.Status = domain.ScheduleStatusScheduled
		s.schedule.Version++
		cp := s.schedule
		return &cp, nil
	}
	if s.schedule.AssignmentStatus == domain.AssignmentStatusConfirmed &&
		s.schedule.TrainerID != nil && *s.schedule.TrainerID == trainerID {
		cp := s.schedule
		return &cp, nil
	}
	if s.schedule.AssignmentStatus == domain.AssignmentStatusPending {
		return nil, store.ErrWrongTrainer
	}
	return nil, store.ErrNotPending
}

func (s *assignmentRepoStub) DeclineAssignment(ctx context.Context, scheduleID, trainerID uuid.UUID, reason *string) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule.AssignmentStatus != domain.AssignmentStatusPending ||
		s.schedule.TrainerID == nil || *s.schedule.TrainerID != trainerID {
		if s.schedule.AssignmentStatus == domain.AssignmentStatusPending {
			return nil, store.ErrWrongTrainer
		}
		return nil, store.ErrNotPending
	}
	s.schedule.TrainerID = nil
	s.schedule.AssignmentStatus = domain.AssignmentStatusDeclined
	s.schedule.DeclineReason = reason
	s.schedule.Version++
	cp := s.schedule
	return &cp, nil
}

// recordingPublisher captures broker publishes.
type recordingPublisher struct {
	mu          sync.Mutex
	routingKeys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.routingKeys...)
}

// recordingSyncPublisher captures pushed sync contexts.
type recordingSyncPublisher struct {
	mu       sync.Mutex
	contexts []domain.SyncContext
}

func (p *recordingSyncPublisher) PublishContexts(ctx context.Context, userIDs []uuid.UUID, roles []string, contexts []domain.SyncContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts = append(p.contexts, contexts...)
	return nil
}

func (p *recordingSyncPublisher) sawContext(want domain.SyncContext) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.contexts {
		if c == want {
			return true
		}
	}
	return false
}

type fixedLimiter struct {
	count int
	err   error
}

func (l *fixedLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 0, l.err
}

func TestOffer_ConcurrentOffersOneWinner(t *testing.T) {
	repo := newAssignmentRepoStub()
	service := NewService(repo, nil, nil, nil)

	trainerA := uuid.New()
	trainerB := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = service.Offer(context.Background(), repo.schedule.ID, trainerA)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = service.Offer(context.Background(), repo.schedule.ID, trainerB)
	}()
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, store.ErrAlreadyAssigned):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Fatalf("expected exactly one winner and one AlreadyAssigned loser, got winners=%d losers=%d", winners, losers)
	}

	final := repo.snapshot()
	if final.AssignmentStatus != domain.AssignmentStatusPending {
		t.Fatalf("expected pending assignment, got %q", final.AssignmentStatus)
	}
	if final.TrainerID == nil {
		t.Fatal("expected a trainer on record after the winning offer")
	}
}

func TestConfirm_WrongTrainerLosesRace(t *testing.T) {
	repo := newAssignmentRepoStub()
	service := NewService(repo, nil, nil, nil)

	trainerA := uuid.New()
	trainerB := uuid.New()
	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainerA); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = service.Confirm(context.Background(), repo.schedule.ID, trainerA)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = service.Confirm(context.Background(), repo.schedule.ID, trainerB)
	}()
	wg.Wait()

	if errs[0] != nil {
		t.Fatalf("expected pending trainer to confirm, got %v", errs[0])
	}
	if !errors.Is(errs[1], store.ErrWrongTrainer) && !errors.Is(errs[1], store.ErrNotPending) {
		t.Fatalf("expected the other trainer to be rejected, got %v", errs[1])
	}

	final := repo.snapshot()
	if final.AssignmentStatus != domain.AssignmentStatusConfirmed {
		t.Fatalf("expected confirmed assignment, got %q", final.AssignmentStatus)
	}
	if final.Status != domain.ScheduleStatusScheduled {
		t.Fatalf("expected schedule to be scheduled, got %q", final.Status)
	}
	if final.TrainerID == nil || *final.TrainerID != trainerA {
		t.Fatal("expected trainer A on the confirmed schedule")
	}
}

func TestConfirm_RetryIsNoOpSuccess(t *testing.T) {
	repo := newAssignmentRepoStub()
	service := NewService(repo, nil, nil, nil)

	trainer := uuid.New()
	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainer); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	first, err := service.Confirm(context.Background(), repo.schedule.ID, trainer)
	if err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	second, err := service.Confirm(context.Background(), repo.schedule.ID, trainer)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if second.Version != first.Version {
		t.Fatalf("expected retry not to bump version, got %d then %d", first.Version, second.Version)
	}
}

func TestDecline_ReleasesTrainerForReoffer(t *testing.T) {
	repo := newAssignmentRepoStub()
	producer := &recordingPublisher{}
	service := NewService(repo, producer, nil, nil)

	trainerA := uuid.New()
	trainerB := uuid.New()
	reason := "holiday cover clash"

	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainerA); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	declined, err := service.Decline(context.Background(), repo.schedule.ID, trainerA, &reason)
	if err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	if declined.TrainerID != nil {
		t.Fatal("expected decline to clear the trainer")
	}
	if declined.DeclineReason == nil || *declined.DeclineReason != reason {
		t.Fatal("expected decline reason to be recorded")
	}

	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainerB); err != nil {
		t.Fatalf("re-offer after decline failed: %v", err)
	}
	confirmed, err := service.Confirm(context.Background(), repo.schedule.ID, trainerB)
	if err != nil {
		t.Fatalf("confirm after re-offer failed: %v", err)
	}
	if confirmed.TrainerID == nil || *confirmed.TrainerID != trainerB {
		t.Fatal("expected trainer B on the rescheduled session")
	}
	if confirmed.DeclineReason != nil {
		t.Fatal("expected re-offer to clear the previous decline reason")
	}

	keys := producer.keys()
	var sawDeclined bool
	for _, k := range keys {
		if k == "schedule.assignment.declined" {
			sawDeclined = true
		}
	}
	if !sawDeclined {
		t.Fatalf("expected a declined event for the scheduler, got %v", keys)
	}
}

func TestConfirm_RateLimited(t *testing.T) {
	repo := newAssignmentRepoStub()
	service := NewService(repo, nil, nil, nil)
	service.SetRateLimiter(&fixedLimiter{count: 31}, 30)

	trainer := uuid.New()
	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainer); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	if _, err := service.Confirm(context.Background(), repo.schedule.ID, trainer); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Limiter infrastructure trouble must not block the trainer.
	service.SetRateLimiter(&fixedLimiter{err: errors.New("redis down")}, 30)
	if _, err := service.Confirm(context.Background(), repo.schedule.ID, trainer); err != nil {
		t.Fatalf("expected confirm to proceed when limiter errors, got %v", err)
	}
}

func TestConfirm_PushesAffectedContexts(t *testing.T) {
	repo := newAssignmentRepoStub()
	syncPub := &recordingSyncPublisher{}
	service := NewService(repo, nil, syncPub, nil)

	trainer := uuid.New()
	if _, err := service.Offer(context.Background(), repo.schedule.ID, trainer); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	if _, err := service.Confirm(context.Background(), repo.schedule.ID, trainer); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	for _, want := range []domain.SyncContext{domain.ContextBookings, domain.ContextTrainerSchedules, domain.ContextNotifications} {
		if !syncPub.sawContext(want) {
			t.Fatalf("expected context %q to be pushed", want)
		}
	}
}
