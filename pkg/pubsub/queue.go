package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxAckIDsPerRequest keeps acknowledge requests under the API payload limit.
const maxAckIDsPerRequest = 1000

// Message is one pulled message. Until it is deleted it is invisible to other
// consumers for the subscription ack deadline, then redelivered.
type Message struct {
	ID          string
	AckID       string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

type subscriptionAPI interface {
	Pull(ctx context.Context, req *pubsubpb.PullRequest, opts ...gax.CallOption) (*pubsubpb.PullResponse, error)
	Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, opts ...gax.CallOption) error
}

// Queue exposes receive/delete semantics over a synchronous-pull subscription.
type Queue struct {
	api          subscriptionAPI
	subscription string
}

// NewQueue wraps a subscription admin client for the given full subscription name.
func NewQueue(api subscriptionAPI, subscription string) *Queue {
	return &Queue{api: api, subscription: subscription}
}

// Receive pulls up to max messages, waiting at most wait for any to arrive.
// An empty slice means the subscription was drained.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if q == nil || q.api == nil {
		return nil, errors.New("pubsub queue not initialized")
	}
	if max <= 0 {
		return nil, nil
	}

	pullCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	resp, err := q.api.Pull(pullCtx, &pubsubpb.PullRequest{
		Subscription: q.subscription,
		MaxMessages:  int32(max),
	})
	if err != nil {
		// A pull that waits out its deadline simply found nothing.
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("pull %s: %w", q.subscription, err)
	}

	out := make([]Message, 0, len(resp.GetReceivedMessages()))
	for _, rm := range resp.GetReceivedMessages() {
		msg := rm.GetMessage()
		m := Message{
			ID:         msg.GetMessageId(),
			AckID:      rm.GetAckId(),
			Data:       msg.GetData(),
			Attributes: msg.GetAttributes(),
		}
		if ts := msg.GetPublishTime(); ts != nil {
			m.PublishTime = ts.AsTime()
		}
		out = append(out, m)
	}
	return out, nil
}

// Delete acknowledges messages so they are never redelivered.
func (q *Queue) Delete(ctx context.Context, ackIDs ...string) error {
	if q == nil || q.api == nil {
		return errors.New("pubsub queue not initialized")
	}
	for start := 0; start < len(ackIDs); start += maxAckIDsPerRequest {
		end := start + maxAckIDsPerRequest
		if end > len(ackIDs) {
			end = len(ackIDs)
		}
		if err := q.api.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
			Subscription: q.subscription,
			AckIds:       ackIDs[start:end],
		}); err != nil {
			return fmt.Errorf("acknowledge %s: %w", q.subscription, err)
		}
	}
	return nil
}
