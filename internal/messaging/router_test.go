package messaging

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumers struct {
	mu             sync.Mutex
	adminTexts     []string
	checks         []models.CryptoCheck
	expiries       []int64
	followUps      []int64
	correlationIDs []string
}

func (r *recordingConsumers) DeliverToAdmins(ctx context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adminTexts = append(r.adminTexts, text)
	r.correlationIDs = append(r.correlationIDs, CorrelationIDFromContext(ctx))
}

func (r *recordingConsumers) StartInvoicePolling(ctx context.Context, check models.CryptoCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
	return nil
}

func (r *recordingConsumers) ScheduleExpiry(ctx context.Context, bookingID, userID int64, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries = append(r.expiries, bookingID)
	return nil
}

func (r *recordingConsumers) ScheduleFollowUps(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followUps = append(r.followUps, userID)
	return nil
}

func (r *recordingConsumers) followUpCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.followUps)
}

func (r *recordingConsumers) snapshot() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.adminTexts), len(r.checks), len(r.expiries)
}

func TestRouter_DispatchesTopics(t *testing.T) {
	logger := watermill.NopLogger{}
	appLogger := logrus.New()
	appLogger.SetOutput(io.Discard)

	pub, sub, err := NewPubSub(nil, logger)
	require.NoError(t, err)

	consumers := &recordingConsumers{}
	router, err := NewRouter(RouterDeps{
		Subscriber:  sub,
		Logger:      logger,
		AppLogger:   appLogger,
		Admins:      consumers,
		Invoices:    consumers,
		Expirations: consumers,
		FollowUps:   consumers,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	publisher := NewPublisher(pub)
	flowCtx := ContextWithCorrelationID(context.Background(), "flow-1")

	require.NoError(t, publisher.Publish(flowCtx, TopicAdminMessage, AdminMessage{Text: "new booking #10"}))
	require.NoError(t, publisher.Publish(flowCtx, TopicCryptoCheck, models.CryptoCheck{BookingID: 10, InvoiceID: 555, UserID: 42}))
	require.NoError(t, publisher.Publish(flowCtx, TopicExpireCheck, ExpireCheck{BookingID: 10, UserID: 42, CreatedAt: time.Now()}))
	require.NoError(t, publisher.Publish(flowCtx, TopicUserFollowUp, UserFollowUp{UserID: 42}))

	assert.Eventually(t, func() bool {
		admins, checks, expiries := consumers.snapshot()
		return admins == 1 && checks == 1 && expiries == 1 && consumers.followUpCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	consumers.mu.Lock()
	defer consumers.mu.Unlock()
	assert.Equal(t, "new booking #10", consumers.adminTexts[0])
	assert.Equal(t, "flow-1", consumers.correlationIDs[0])
	assert.Equal(t, int64(555), consumers.checks[0].InvoiceID)
	assert.Equal(t, int64(10), consumers.expiries[0])
	assert.Equal(t, int64(42), consumers.followUps[0])
}

func TestRouter_DropsMalformedPayloads(t *testing.T) {
	logger := watermill.NopLogger{}
	appLogger := logrus.New()
	appLogger.SetOutput(io.Discard)

	pub, sub, err := NewPubSub(nil, logger)
	require.NoError(t, err)

	consumers := &recordingConsumers{}
	router, err := NewRouter(RouterDeps{
		Subscriber:  sub,
		Logger:      logger,
		AppLogger:   appLogger,
		Admins:      consumers,
		Invoices:    consumers,
		Expirations: consumers,
		FollowUps:   consumers,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	publisher := NewPublisher(pub)
	require.NoError(t, publisher.Publish(context.Background(), TopicCryptoCheck, "not an object"))
	require.NoError(t, publisher.Publish(context.Background(), TopicAdminMessage, AdminMessage{Text: "after"}))

	assert.Eventually(t, func() bool {
		admins, _, _ := consumers.snapshot()
		return admins == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, checks, _ := consumers.snapshot()
	assert.Equal(t, 0, checks)
}
