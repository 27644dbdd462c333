// Package envelope normalizes the five inbound trigger shapes (API Gateway,
// SNS, SQS, EventBridge, direct invocation) into one request object so
// handlers never see transport-specific fields.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Kind distinguishes operator action requests from organic inbound events.
type Kind string

const (
	// KindAction is an operator request carrying an explicit action name.
	KindAction Kind = "action"
	// KindInboundEvent is a webhook delivery with no operator action, i.e.
	// an organic customer message or status update.
	KindInboundEvent Kind = "inbound_event"
)

// Source identifies the trigger that delivered the raw event.
type Source string

const (
	SourceAPIGateway  Source = "apigateway"
	SourceSNS         Source = "sns"
	SourceSQS         Source = "sqs"
	SourceEventBridge Source = "eventbridge"
	SourceDirect      Source = "direct"
	SourceCLI         Source = "cli"
)

// async reports whether the source delivers events asynchronously, meaning a
// missing action marks an organic inbound event rather than a bad request.
func (s Source) async() bool {
	return s == SourceSNS || s == SourceSQS || s == SourceEventBridge
}

// Envelope is the normalized request every handler consumes.
type Envelope struct {
	Kind      Kind
	Action    string
	RequestID string
	TenantID  string
	Source    Source
	Payload   map[string]any
	Raw       json.RawMessage
}

// ParseError reports a raw event that could not be normalized. For HTTP
// triggers it maps to a 400; for queue triggers the record is skipped with a
// warning, since redelivering a malformed payload cannot succeed.
type ParseError struct {
	Source Source
	Reason string
	cause  error
}

func (e *ParseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("parse %s event: %s: %v", e.Source, e.Reason, e.cause)
	}
	return fmt.Sprintf("parse %s event: %s", e.Source, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.cause
}
