package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
	"github.com/google/uuid"
)

const orderIDPrefix = "ORD-"

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type orderEnvelope struct {
	OrderID string        `json:"order_id"`
	Order   OrderSnapshot `json:"order"`
}

// PubSubSubmitter publishes placed orders to the kitchen orders topic and waits for the ack.
type PubSubSubmitter struct {
	pub     publisher
	windows Windows
	newID   func() string
}

// NewPubSubSubmitter wraps a topic publisher.
func NewPubSubSubmitter(pub *gcppubsub.Publisher, windows Windows) (*PubSubSubmitter, error) {
	if pub == nil {
		return nil, errors.New("orders publisher required")
	}
	return newPubSubSubmitter(&gcpPublisher{Publisher: pub}, windows, nil), nil
}

func newPubSubSubmitter(pub publisher, windows Windows, newID func() string) *PubSubSubmitter {
	if newID == nil {
		newID = newOrderID
	}
	return &PubSubSubmitter{pub: pub, windows: windows, newID: newID}
}

func (s *PubSubSubmitter) Mode() string {
	return config.SubmissionModePubSub
}

func (s *PubSubSubmitter) Submit(ctx context.Context, snapshot OrderSnapshot) (Result, error) {
	orderID := s.newID()
	payload, err := json.Marshal(orderEnvelope{OrderID: orderID, Order: snapshot})
	if err != nil {
		return Result{}, newSubmissionError(enums.SubmissionRejected, err)
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"order_id":     orderID,
			"order_type":   string(snapshot.OrderType),
			"submitted_at": snapshot.SubmittedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	result := s.pub.Publish(ctx, msg)
	if result == nil {
		return Result{}, newSubmissionError(enums.SubmissionUnavailable, errors.New("publisher returned nil result"))
	}
	if _, err := result.Get(ctx); err != nil {
		return Result{}, newSubmissionError(enums.SubmissionUnavailable, err)
	}
	return Result{OrderID: orderID, EstimatedWindow: s.windows.For(snapshot.OrderType)}, nil
}

// Stop flushes pending publishes and releases the publisher.
func (s *PubSubSubmitter) Stop() {
	if stopper, ok := s.pub.(interface{ Stop() }); ok {
		stopper.Stop()
	}
}

func newOrderID() string {
	return orderIDPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
