// Package main implements the inbound processor Lambda: it drains the
// webhook SQS queue, processing records concurrently and reporting partial
// batch failures so only failed records are redelivered.
package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonops/waba-actions/internal/actions"
	"github.com/halcyonops/waba-actions/internal/awsinit"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/inbound"
	"github.com/halcyonops/waba-actions/internal/logging"
)

// recordConcurrency bounds parallel record processing. Records are
// independent; cross-conversation ordering is not guaranteed by the queue
// either way.
const recordConcurrency = 4

var logger = logging.New()

type processor struct {
	registry *dispatch.Registry
	deps     *deps.Deps
}

func newProcessor(d *deps.Deps) *processor {
	return &processor{
		registry: actions.NewRegistry(),
		deps:     d,
	}
}

// handle processes one SQS batch, returning the item failures for records
// that should be redelivered.
func (p *processor) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var mu sync.Mutex
	var failures []events.SQSBatchItemFailure

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(recordConcurrency)
	for _, record := range event.Records {
		g.Go(func() error {
			if err := p.processRecord(gCtx, record); err != nil {
				logger.Error("record failed",
					slog.String("messageId", record.MessageId),
					slog.String("error", err.Error()))
				mu.Lock()
				failures = append(failures, events.SQSBatchItemFailure{
					ItemIdentifier: record.MessageId,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (p *processor) processRecord(ctx context.Context, record events.SQSMessage) error {
	env, err := envelope.FromRecordBody(envelope.SourceSQS, record.MessageId, record.Body)
	if err != nil {
		// Redelivering a malformed body cannot succeed; drop it with a
		// warning instead of failing the record.
		logger.Warn("skipping unparseable record",
			slog.String("messageId", record.MessageId),
			slog.String("error", err.Error()))
		return nil
	}

	if env.Kind == envelope.KindAction {
		resp, ok := p.registry.Dispatch(ctx, env, p.deps)
		if !ok {
			logger.Warn("unknown action on queue",
				slog.String("action", env.Action),
				slog.String("messageId", record.MessageId))
			return nil
		}
		if status, _ := resp["statusCode"].(int); status >= 500 {
			// 5xx means a transient dependency failure; redeliver. 4xx is
			// the caller's bug and will not improve with retries.
			return &queueActionError{action: env.Action, status: status}
		}
		return nil
	}

	return inbound.FromDeps(p.deps).Process(ctx, env)
}

type queueActionError struct {
	action string
	status int
}

func (e *queueActionError) Error() string {
	return "queued action " + e.action + " failed with server error"
}

func main() {
	ctx := context.Background()

	initResult, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("initialization failed", slog.String("error", err.Error()))
		panic(err)
	}

	d := deps.New(deps.ConfigFromEnv(), initResult.Config, logger)
	p := newProcessor(d)

	initResult.Start(p.handle)
}
