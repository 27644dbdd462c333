// Package notify fans events out to subscribers via SNS and requeues retryable
// work via SQS.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Event is the notification published for lifecycle changes. Type is carried
// as a message attribute so subscriptions can filter without parsing bodies.
type Event struct {
	Type       string          `json:"type"`
	WabaID     string          `json:"wabaId,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventPublisher publishes lifecycle events for subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// SNSAPI abstracts SNS publish operations for dependency inversion.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes events to an SNS topic.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher creates a new SNSPublisher.
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
	}
}

// Publish sends the event to the topic.
func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type),
			},
		},
	})
	return err
}

// Forwarder requeues payloads for a later retry attempt.
type Forwarder interface {
	Forward(ctx context.Context, body []byte, delay time.Duration) error
}

// SQSAPI abstracts SQS send operations for dependency inversion.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder requeues payloads onto an SQS retry queue.
type SQSForwarder struct {
	client   SQSAPI
	queueURL string
}

// NewSQSForwarder creates a new SQSForwarder.
func NewSQSForwarder(client SQSAPI, queueURL string) *SQSForwarder {
	return &SQSForwarder{
		client:   client,
		queueURL: queueURL,
	}
}

// maxSQSDelay is the SQS per-message delay ceiling.
const maxSQSDelay = 15 * time.Minute

// Forward sends the payload to the retry queue with the given delivery delay.
func (f *SQSForwarder) Forward(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}

	_, err := f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(f.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	return err
}
