// Package messaging wraps the End User Messaging Social API for WhatsApp
// sends and media transfer.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/socialmessaging"
	smtypes "github.com/aws/aws-sdk-go-v2/service/socialmessaging/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"
)

// Sender defines the message-send operations handlers depend on.
type Sender interface {
	Send(ctx context.Context, originationPhoneID string, payload []byte) (string, error)
	UploadMedia(ctx context.Context, originationPhoneID, bucket, key string) (string, error)
	FetchMedia(ctx context.Context, originationPhoneID, mediaID, bucket, key string) error
}

// SocialAPI abstracts the End User Messaging Social client for dependency
// inversion.
type SocialAPI interface {
	SendWhatsAppMessage(ctx context.Context, params *socialmessaging.SendWhatsAppMessageInput, optFns ...func(*socialmessaging.Options)) (*socialmessaging.SendWhatsAppMessageOutput, error)
	PostWhatsAppMessageMedia(ctx context.Context, params *socialmessaging.PostWhatsAppMessageMediaInput, optFns ...func(*socialmessaging.Options)) (*socialmessaging.PostWhatsAppMessageMediaOutput, error)
	GetWhatsAppMessageMedia(ctx context.Context, params *socialmessaging.GetWhatsAppMessageMediaInput, optFns ...func(*socialmessaging.Options)) (*socialmessaging.GetWhatsAppMessageMediaOutput, error)
}

// DefaultMetaAPIVersion is the Meta Graph API version sent with each message.
const DefaultMetaAPIVersion = "v20.0"

// maxSendAttempts bounds throttling retries; anything else fails immediately
// and is left to the caller or the trigger's redelivery.
const maxSendAttempts = 4

// Client implements Sender over the Social API with bounded backoff on
// throttling.
type Client struct {
	api            SocialAPI
	metaAPIVersion string
	maxInterval    time.Duration
}

// NewClient creates a new Client.
func NewClient(api SocialAPI, metaAPIVersion string) *Client {
	if metaAPIVersion == "" {
		metaAPIVersion = DefaultMetaAPIVersion
	}
	return &Client{api: api, metaAPIVersion: metaAPIVersion, maxInterval: 2 * time.Second}
}

// Send delivers one WhatsApp message payload through the origination phone
// and returns the provider message id.
func (c *Client) Send(ctx context.Context, originationPhoneID string, payload []byte) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("message payload is not valid JSON")
	}

	operation := func() (string, error) {
		output, err := c.api.SendWhatsAppMessage(ctx, &socialmessaging.SendWhatsAppMessageInput{
			OriginationPhoneNumberId: aws.String(originationPhoneID),
			Message:                  payload,
			MetaApiVersion:           aws.String(c.metaAPIVersion),
		})
		if err != nil {
			if isThrottle(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return aws.ToString(output.MessageId), nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxInterval = c.maxInterval

	messageID, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxSendAttempts),
	)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return messageID, nil
}

// UploadMedia registers an S3 object as WhatsApp media and returns the media id.
func (c *Client) UploadMedia(ctx context.Context, originationPhoneID, bucket, key string) (string, error) {
	output, err := c.api.PostWhatsAppMessageMedia(ctx, &socialmessaging.PostWhatsAppMessageMediaInput{
		OriginationPhoneNumberId: aws.String(originationPhoneID),
		SourceS3File: &smtypes.S3File{
			BucketName: aws.String(bucket),
			Key:        aws.String(key),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	return aws.ToString(output.MediaId), nil
}

// FetchMedia downloads inbound WhatsApp media into an S3 object.
func (c *Client) FetchMedia(ctx context.Context, originationPhoneID, mediaID, bucket, key string) error {
	_, err := c.api.GetWhatsAppMessageMedia(ctx, &socialmessaging.GetWhatsAppMessageMediaInput{
		OriginationPhoneNumberId: aws.String(originationPhoneID),
		MediaId:                  aws.String(mediaID),
		DestinationS3File: &smtypes.S3File{
			BucketName: aws.String(bucket),
			Key:        aws.String(key),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to fetch media: %w", err)
	}
	return nil
}

// isThrottle reports whether the error is a throttling rejection worth
// retrying.
func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottledRequestException", "ThrottlingException", "TooManyRequestsException":
		return true
	}
	return false
}
