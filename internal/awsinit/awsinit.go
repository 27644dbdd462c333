// Package awsinit performs one-time process initialization: AWS config,
// X-Ray tracer provider, and OTel instrumentation for the Lambda handler
// and every SDK client built from the returned config.
package awsinit

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Result holds the initialized AWS config and tracer provider.
type Result struct {
	Config aws.Config
	tp     *sdktrace.TracerProvider
}

// Init loads AWS configuration and installs the tracer provider. Failures
// here are fatal: a Lambda that cannot load credentials or region cannot
// serve any request, so callers panic rather than retry.
func Init(ctx context.Context) (*Result, error) {
	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Result{Config: cfg, tp: tp}, nil
}

// Start runs the Lambda runtime loop with the handler wrapped in OTel
// instrumentation.
func (r *Result) Start(handler any) {
	lambda.Start(otellambda.InstrumentHandler(handler, xrayconfig.WithRecommendedOptions(r.tp)...))
}
