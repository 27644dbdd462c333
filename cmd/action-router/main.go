// Package main implements the action router Lambda: it normalizes whatever
// trigger delivered the event, dispatches operator actions, and hands
// organic webhook deliveries to the inbound pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/halcyonops/waba-actions/internal/actions"
	"github.com/halcyonops/waba-actions/internal/awsinit"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/dispatch"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/inbound"
	"github.com/halcyonops/waba-actions/internal/logging"
)

var logger = logging.New()

// router holds the registry and dependencies for one process lifetime.
type router struct {
	registry *dispatch.Registry
	deps     *deps.Deps
}

func newRouter(d *deps.Deps) *router {
	return &router{
		registry: actions.NewRegistry(),
		deps:     d,
	}
}

// handle processes one raw Lambda event of any supported trigger shape.
func (r *router) handle(ctx context.Context, raw json.RawMessage) (any, error) {
	env, err := envelope.Parse(raw)
	if err != nil {
		var pe *envelope.ParseError
		if errors.As(err, &pe) {
			logger.Warn("unparseable event",
				slog.String("source", string(pe.Source)),
				slog.String("reason", pe.Reason))
			resp := dispatch.Response{
				"statusCode": http.StatusBadRequest,
				"error": map[string]any{
					"code":    "invalidArguments",
					"message": pe.Reason,
				},
			}
			return shape(resp, pe.Source), nil
		}
		return nil, err
	}

	logger.Info("event received",
		slog.String("source", string(env.Source)),
		slog.String("kind", string(env.Kind)),
		slog.String("action", env.Action),
		slog.String("requestId", env.RequestID))

	if env.Kind == envelope.KindInboundEvent {
		if err := inbound.FromDeps(r.deps).Process(ctx, env); err != nil {
			logger.Error("inbound processing failed",
				slog.String("requestId", env.RequestID),
				slog.String("error", err.Error()))
			return nil, err
		}
		return shape(dispatch.Response{"statusCode": http.StatusOK, "processed": true}, env.Source), nil
	}

	resp, ok := r.registry.Dispatch(ctx, env, r.deps)
	if !ok {
		resp = dispatch.Response{
			"statusCode": http.StatusNotFound,
			"error": map[string]any{
				"code":    "unknownAction",
				"message": "unknown action " + env.Action,
			},
		}
	}
	return shape(resp, env.Source), nil
}

// shape adapts the response to the trigger: API Gateway needs a proxy
// response with the body serialized, everything else takes the map as is.
func shape(resp dispatch.Response, source envelope.Source) any {
	if source != envelope.SourceAPIGateway {
		return resp
	}

	status, _ := resp["statusCode"].(int)
	if status == 0 {
		status = http.StatusOK
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"statusCode":500,"error":{"code":"serverFail","message":"internal error"}}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func main() {
	ctx := context.Background()

	initResult, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("initialization failed", slog.String("error", err.Error()))
		panic(err)
	}

	d := deps.New(deps.ConfigFromEnv(), initResult.Config, logger)
	r := newRouter(d)

	initResult.Start(r.handle)
}
