// Package notify delivers password reset tokens out of band.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Kyz7/identity/internal/logging"
	"github.com/Kyz7/identity/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const EventPasswordResetRequested = "password_reset.requested"

// ResetEvent is the message consumed by the mailer.
type ResetEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	UserID    uint      `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewResetEvent(u *models.User, req *models.PasswordResetRequest) ResetEvent {
	return ResetEvent{
		EventID:   uuid.NewString(),
		Type:      EventPasswordResetRequested,
		UserID:    u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Token:     req.Token,
		ExpiresAt: req.ExpiresAt,
	}
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes in the background so a known address costs the
// caller no more time than an unknown one.
type KafkaNotifier struct {
	writer  MessageWriter
	timeout time.Duration
	pending sync.WaitGroup
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaNotifierWithWriter(w)
}

func NewKafkaNotifierWithWriter(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w, timeout: 5 * time.Second}
}

// PasswordResetRequested queues a ResetEvent keyed by user id so events for
// one user stay ordered on a partition. Write failures are logged from the
// background publish; only encoding errors are returned.
func (n *KafkaNotifier) PasswordResetRequested(ctx context.Context, u *models.User, req *models.PasswordResetRequest) error {
	data, err := json.Marshal(NewResetEvent(u, req))
	if err != nil {
		return fmt.Errorf("kafka: marshal reset event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(u.ID), 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventPasswordResetRequested)},
		},
	}

	log := logging.FromContext(ctx).With("user_id", u.ID)
	publishCtx := context.WithoutCancel(ctx)

	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		ctx, cancel := context.WithTimeout(publishCtx, n.timeout)
		defer cancel()
		if err := n.writer.WriteMessages(ctx, msg); err != nil {
			log.Warn("reset notification failed", "error", fmt.Errorf("kafka: write reset event: %w", err))
		}
	}()
	return nil
}

// Flush waits for queued events to be written or to time out.
func (n *KafkaNotifier) Flush() {
	n.pending.Wait()
}

// Close flushes queued events and closes the writer.
func (n *KafkaNotifier) Close() error {
	n.Flush()
	return n.writer.Close()
}

// LogNotifier records that a reset was requested without the token. It is
// used when no brokers are configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PasswordResetRequested(_ context.Context, u *models.User, req *models.PasswordResetRequest) error {
	n.log.Info("password reset requested",
		"user_id", u.ID,
		"request_id", req.ID,
		"expires_at", req.ExpiresAt,
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
