package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/littlesteps/booking-service/internal/domain"
	"github.com/littlesteps/booking-service/internal/store"
)

type paymentRepoStub struct {
	store.Repository

	payment    *domain.Payment
	booking    *domain.Booking
	markErr    error
	failErr    error
	markCalled bool
	failCalled bool

	notifications []domain.InAppNotification
}

func (s *paymentRepoStub) MarkPaymentCompleted(ctx context.Context, providerReference string) (*domain.Payment, error) {
	s.markCalled = true
	if s.markErr != nil {
		return nil, s.markErr
	}
	return s.payment, nil
}

func (s *paymentRepoStub) MarkPaymentFailed(ctx context.Context, providerReference string, reason string) (*domain.Payment, error) {
	s.failCalled = true
	if s.failErr != nil {
		return nil, s.failErr
	}
	return s.payment, nil
}

func (s *paymentRepoStub) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	if s.booking == nil {
		return nil, store.ErrBookingNotFound
	}
	cp := *s.booking
	return &cp, nil
}

func (s *paymentRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	s.notifications = append(s.notifications, item)
	return nil
}

func paymentEventBody(t *testing.T, status, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.PaymentStatusEvent{
		EventID:           "evt_" + uuid.NewString(),
		Status:            status,
		ProviderReference: reference,
		AmountPence:       4500,
		Currency:          "GBP",
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestHandleMessage_SettlesTopUpAndNotifiesOwner(t *testing.T) {
	bookingID := uuid.New()
	parentID := uuid.New()
	repo := &paymentRepoStub{
		payment: &domain.Payment{
			ID:           uuid.New(),
			BookingID:    bookingID,
			AmountPence:  4500,
			Status:       domain.PaymentStatusCompleted,
			Purpose:      domain.PaymentPurposeTopUp,
			AddedMinutes: 300,
		},
		booking: &domain.Booking{ID: bookingID, Reference: "LS-ABC123", ParentID: parentID},
	}
	syncPub := &recordingSyncPublisher{}
	consumer := NewPaymentStatusConsumer(repo, syncPub)

	if ok := consumer.HandleMessage(paymentEventBody(t, "successful", "pay_123")); !ok {
		t.Fatal("expected settlement to acknowledge")
	}
	if !repo.markCalled {
		t.Fatal("expected MarkPaymentCompleted to be called")
	}
	if len(repo.notifications) != 1 || repo.notifications[0].UserID != parentID {
		t.Fatalf("expected one owner notification, got %v", repo.notifications)
	}
	if !syncPub.sawContext(domain.ContextPayments) || !syncPub.sawContext(domain.ContextBookings) {
		t.Fatal("expected payments and bookings contexts to be pushed")
	}
}

func TestHandleMessage_UnknownReferenceIsAcknowledged(t *testing.T) {
	repo := &paymentRepoStub{markErr: store.ErrPaymentNotFound}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage(paymentEventBody(t, "completed", "pay_unknown")); !ok {
		t.Fatal("expected unknown reference to be acknowledged, not re-queued")
	}
}

func TestHandleMessage_RepositoryErrorRequeues(t *testing.T) {
	repo := &paymentRepoStub{markErr: errors.New("connection reset")}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage(paymentEventBody(t, "completed", "pay_123")); ok {
		t.Fatal("expected transient repository error to re-queue the delivery")
	}
}

func TestHandleMessage_MalformedPayloadIsDropped(t *testing.T) {
	repo := &paymentRepoStub{}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage([]byte("{not json")); !ok {
		t.Fatal("expected malformed payload to be acknowledged and dropped")
	}
	if repo.markCalled || repo.failCalled {
		t.Fatal("expected no repository calls for malformed payload")
	}
}

func TestHandleMessage_MissingReferenceIsDropped(t *testing.T) {
	repo := &paymentRepoStub{}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage(paymentEventBody(t, "completed", "")); !ok {
		t.Fatal("expected missing reference to be acknowledged and dropped")
	}
	if repo.markCalled {
		t.Fatal("expected no settlement attempt without a reference")
	}
}

func TestHandleMessage_ProcessingStatusIsIgnored(t *testing.T) {
	repo := &paymentRepoStub{}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage(paymentEventBody(t, "processing", "pay_123")); !ok {
		t.Fatal("expected non-terminal status to be acknowledged")
	}
	if repo.markCalled || repo.failCalled {
		t.Fatal("expected no settlement for non-terminal status")
	}
}

func TestHandleMessage_FailureNotifiesOwner(t *testing.T) {
	bookingID := uuid.New()
	parentID := uuid.New()
	repo := &paymentRepoStub{
		payment: &domain.Payment{ID: uuid.New(), BookingID: bookingID, Status: domain.PaymentStatusFailed},
		booking: &domain.Booking{ID: bookingID, Reference: "LS-ABC123", ParentID: parentID},
	}
	consumer := NewPaymentStatusConsumer(repo, nil)

	if ok := consumer.HandleMessage(paymentEventBody(t, "failed", "pay_123")); !ok {
		t.Fatal("expected failure handling to acknowledge")
	}
	if !repo.failCalled {
		t.Fatal("expected MarkPaymentFailed to be called")
	}
	if len(repo.notifications) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(repo.notifications))
	}
}
