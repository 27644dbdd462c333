// Package deps wires service clients and repositories behind lazy accessors
// so entrypoints construct only what a given invocation touches, and tests
// swap any piece via the exported fields.
package deps

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/socialmessaging"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/halcyonops/waba-actions/internal/assistant"
	"github.com/halcyonops/waba-actions/internal/conversation"
	"github.com/halcyonops/waba-actions/internal/dynamo"
	"github.com/halcyonops/waba-actions/internal/idempotency"
	"github.com/halcyonops/waba-actions/internal/mailer"
	"github.com/halcyonops/waba-actions/internal/media"
	"github.com/halcyonops/waba-actions/internal/message"
	"github.com/halcyonops/waba-actions/internal/messaging"
	"github.com/halcyonops/waba-actions/internal/notify"
	"github.com/halcyonops/waba-actions/internal/payment"
	"github.com/halcyonops/waba-actions/internal/profile"
	"github.com/halcyonops/waba-actions/internal/template"
)

// Config holds environment configuration shared by all entrypoints.
type Config struct {
	TableName        string
	MediaBucket      string
	EventsTopicARN   string
	RetryQueueURL    string
	AlertSender      string
	AlertRecipients  []string
	AutoReplyModelID string
	MetaAPIVersion   string
	// DefaultPhoneID is the origination phone number used when a request
	// names none.
	DefaultPhoneID string
}

// ConfigFromEnv reads configuration from the Lambda environment.
func ConfigFromEnv() Config {
	return Config{
		TableName:        os.Getenv("TABLE_NAME"),
		MediaBucket:      os.Getenv("MEDIA_BUCKET"),
		EventsTopicARN:   os.Getenv("EVENTS_TOPIC_ARN"),
		RetryQueueURL:    os.Getenv("RETRY_QUEUE_URL"),
		AlertSender:      os.Getenv("ALERT_SENDER"),
		AlertRecipients:  splitList(os.Getenv("ALERT_RECIPIENTS")),
		AutoReplyModelID: os.Getenv("AUTO_REPLY_MODEL_ID"),
		MetaAPIVersion:   os.Getenv("META_API_VERSION"),
		DefaultPhoneID:   os.Getenv("DEFAULT_PHONE_NUMBER_ID"),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Deps holds lazily constructed dependencies. Tests populate the exported
// fields directly; production code lets the accessors build real clients
// from the AWS config.
type Deps struct {
	Config    Config
	Logger    *slog.Logger
	AWSConfig aws.Config

	DBClient          dynamo.Client
	MessageStore      message.Store
	ConversationStore conversation.Store
	TemplateStore     template.Store
	IdempotencyStore  idempotency.Store
	PaymentStore      payment.Store
	ProfileStore      profile.Store
	MediaStore        media.Store
	MessagingClient   messaging.Sender
	EventPublisher    notify.EventPublisher
	RetryForwarder    notify.Forwarder
	AlertMailer       mailer.Sender
	AutoReplier       assistant.Replier

	mu sync.Mutex
}

// New creates a Deps from the given configuration.
func New(cfg Config, awsCfg aws.Config, logger *slog.Logger) *Deps {
	return &Deps{
		Config:    cfg,
		Logger:    logger,
		AWSConfig: awsCfg,
	}
}

// DB returns the DynamoDB client.
func (d *Deps) DB() dynamo.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DBClient == nil {
		d.DBClient = dynamodb.NewFromConfig(d.AWSConfig)
	}
	return d.DBClient
}

// Messages returns the message store.
func (d *Deps) Messages() message.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MessageStore == nil {
		d.MessageStore = message.NewRepository(d.db(), d.Config.TableName)
	}
	return d.MessageStore
}

// Conversations returns the conversation store.
func (d *Deps) Conversations() conversation.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConversationStore == nil {
		d.ConversationStore = conversation.NewRepository(d.db(), d.Config.TableName)
	}
	return d.ConversationStore
}

// Templates returns the template store.
func (d *Deps) Templates() template.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.TemplateStore == nil {
		d.TemplateStore = template.NewRepository(d.db(), d.Config.TableName)
	}
	return d.TemplateStore
}

// Idempotency returns the idempotency store.
func (d *Deps) Idempotency() idempotency.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.IdempotencyStore == nil {
		d.IdempotencyStore = idempotency.NewRepository(d.db(), d.Config.TableName, idempotency.DefaultTTL)
	}
	return d.IdempotencyStore
}

// Payments returns the payment store.
func (d *Deps) Payments() payment.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PaymentStore == nil {
		d.PaymentStore = payment.NewRepository(d.db(), d.Config.TableName)
	}
	return d.PaymentStore
}

// Profiles returns the tenant configuration store.
func (d *Deps) Profiles() profile.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProfileStore == nil {
		d.ProfileStore = profile.NewRepository(d.db(), d.Config.TableName)
	}
	return d.ProfileStore
}

// Media returns the media store.
func (d *Deps) Media() media.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MediaStore == nil {
		api := s3.NewFromConfig(d.AWSConfig)
		d.MediaStore = media.NewS3Store(api, s3.NewPresignClient(api), d.Config.MediaBucket)
	}
	return d.MediaStore
}

// Messaging returns the WhatsApp sender.
func (d *Deps) Messaging() messaging.Sender {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.MessagingClient == nil {
		d.MessagingClient = messaging.NewClient(socialmessaging.NewFromConfig(d.AWSConfig), d.Config.MetaAPIVersion)
	}
	return d.MessagingClient
}

// Events returns the lifecycle event publisher.
func (d *Deps) Events() notify.EventPublisher {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EventPublisher == nil {
		d.EventPublisher = notify.NewSNSPublisher(sns.NewFromConfig(d.AWSConfig), d.Config.EventsTopicARN)
	}
	return d.EventPublisher
}

// Retry returns the retry queue forwarder.
func (d *Deps) Retry() notify.Forwarder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.RetryForwarder == nil {
		d.RetryForwarder = notify.NewSQSForwarder(sqs.NewFromConfig(d.AWSConfig), d.Config.RetryQueueURL)
	}
	return d.RetryForwarder
}

// Mailer returns the operator alert sender.
func (d *Deps) Mailer() mailer.Sender {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.AlertMailer == nil {
		d.AlertMailer = mailer.NewSESSender(sesv2.NewFromConfig(d.AWSConfig), d.Config.AlertSender)
	}
	return d.AlertMailer
}

// Assistant returns the auto-reply generator.
func (d *Deps) Assistant() assistant.Replier {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.AutoReplier == nil {
		d.AutoReplier = assistant.NewBedrockReplier(bedrockruntime.NewFromConfig(d.AWSConfig), d.Config.AutoReplyModelID)
	}
	return d.AutoReplier
}

// db is DB without the lock, for use inside accessors that already hold it.
func (d *Deps) db() dynamo.Client {
	if d.DBClient == nil {
		d.DBClient = dynamodb.NewFromConfig(d.AWSConfig)
	}
	return d.DBClient
}
