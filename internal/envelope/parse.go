package envelope

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
)

// probe captures just enough of each trigger shape to classify it. Detection
// order matters: an API Gateway proxy event also carries a JSON body that
// looks like a direct-invoke payload, so HTTP routing keys are checked first,
// then record lists, then the EventBridge detail-type, and only then is the
// event treated as the action request itself.
type probe struct {
	// API Gateway REST (v1) and HTTP API (v2).
	HTTPMethod      string `json:"httpMethod"`
	RawPath         string `json:"rawPath"`
	Body            string `json:"body"`
	IsBase64Encoded bool   `json:"isBase64Encoded"`
	RequestContext  struct {
		RequestID string `json:"requestId"`
		HTTP      struct {
			Method string `json:"method"`
		} `json:"http"`
	} `json:"requestContext"`

	// SNS and SQS record lists.
	Records []recordProbe `json:"Records"`

	// EventBridge.
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`
	EventID    string          `json:"id"`
}

type recordProbe struct {
	// SNS spells its source field with a capital E, SQS with a lower e.
	EventSourceSNS string `json:"EventSource"`
	EventSource    string `json:"eventSource"`
	SNS            struct {
		MessageID string `json:"MessageId"`
		Message   string `json:"Message"`
	} `json:"Sns"`
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

// snsWrapper is the SNS notification envelope found inside SQS bodies when a
// queue is subscribed to a topic (the webhook fan-out topology).
type snsWrapper struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

// Parse classifies a raw Lambda event and produces an Envelope. Record-list
// events must carry exactly one record here; batch consumers call
// FromRecordBody per record instead, and accepting only the first of several
// would drop the rest.
func Parse(raw json.RawMessage) (*Envelope, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ParseError{Source: SourceDirect, Reason: "event is not valid JSON", cause: err}
	}

	switch {
	case p.HTTPMethod != "" || p.RequestContext.HTTP.Method != "":
		return parseHTTP(raw, &p)
	case len(p.Records) > 0:
		rec := p.Records[0]
		if rec.EventSourceSNS == "aws:sns" || rec.SNS.MessageID != "" {
			if len(p.Records) > 1 {
				return nil, &ParseError{Source: SourceSNS, Reason: "multi-record event; process records individually"}
			}
			return FromRecordBody(SourceSNS, rec.SNS.MessageID, rec.SNS.Message)
		}
		if len(p.Records) > 1 {
			return nil, &ParseError{Source: SourceSQS, Reason: "multi-record event; process records individually"}
		}
		return FromRecordBody(SourceSQS, rec.MessageID, rec.Body)
	case p.DetailType != "":
		return parseEventBridge(raw, &p)
	default:
		return parseDirect(raw)
	}
}

func parseHTTP(raw json.RawMessage, p *probe) (*Envelope, error) {
	body := p.Body
	if p.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, &ParseError{Source: SourceAPIGateway, Reason: "body is not valid base64", cause: err}
		}
		body = string(decoded)
	}

	payload := map[string]any{}
	if body != "" {
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return nil, &ParseError{Source: SourceAPIGateway, Reason: "body is not valid JSON", cause: err}
		}
	}

	env := build(SourceAPIGateway, p.RequestContext.RequestID, payload, raw)
	if env.Action == "" {
		return nil, &ParseError{Source: SourceAPIGateway, Reason: "request body has no action field"}
	}
	return env, nil
}

func parseEventBridge(raw json.RawMessage, p *probe) (*Envelope, error) {
	payload := map[string]any{}
	if len(p.Detail) > 0 {
		if err := json.Unmarshal(p.Detail, &payload); err != nil {
			return nil, &ParseError{Source: SourceEventBridge, Reason: "detail is not valid JSON", cause: err}
		}
	}
	return build(SourceEventBridge, p.EventID, payload, raw), nil
}

func parseDirect(raw json.RawMessage) (*Envelope, error) {
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ParseError{Source: SourceDirect, Reason: "payload is not a JSON object", cause: err}
	}

	env := build(SourceDirect, "", payload, raw)
	if env.Action == "" {
		return nil, &ParseError{Source: SourceDirect, Reason: "payload has no action field"}
	}
	return env, nil
}

// FromRecordBody normalizes one queue or topic record body. SNS notification
// envelopes nested inside SQS bodies are unwrapped so the payload is the same
// whether the webhook arrived via the topic directly or through a queue
// subscription.
func FromRecordBody(source Source, requestID, body string) (*Envelope, error) {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, &ParseError{Source: source, Reason: "record body is not valid JSON", cause: err}
	}

	if source == SourceSQS {
		var wrapper snsWrapper
		if err := json.Unmarshal([]byte(body), &wrapper); err == nil &&
			wrapper.Type == "Notification" && wrapper.Message != "" {
			inner := map[string]any{}
			if err := json.Unmarshal([]byte(wrapper.Message), &inner); err != nil {
				return nil, &ParseError{Source: source, Reason: "SNS message body is not valid JSON", cause: err}
			}
			payload = inner
			if requestID == "" {
				requestID = wrapper.MessageID
			}
		}
	}

	return build(source, requestID, payload, json.RawMessage(body)), nil
}

// build assembles the Envelope and classifies its kind. Async sources with no
// action are organic inbound events; everything else is an action request.
func build(source Source, requestID string, payload map[string]any, raw json.RawMessage) *Envelope {
	action, _ := payload["action"].(string)
	tenant, _ := payload["metaWabaId"].(string)

	if requestID == "" {
		if rid, ok := payload["requestId"].(string); ok {
			requestID = rid
		} else {
			requestID = uuid.New().String()
		}
	}

	kind := KindAction
	if action == "" && source.async() {
		kind = KindInboundEvent
	}

	return &Envelope{
		Kind:      kind,
		Action:    action,
		RequestID: requestID,
		TenantID:  tenant,
		Source:    source,
		Payload:   payload,
		Raw:       raw,
	}
}
