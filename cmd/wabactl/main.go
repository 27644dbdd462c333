// Package main implements wabactl, a CLI that invokes action handlers
// directly against AWS, bypassing the Lambda front door. Useful for
// operational one-offs and local debugging with real credentials.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/halcyonops/waba-actions/internal/actions"
	"github.com/halcyonops/waba-actions/internal/deps"
	"github.com/halcyonops/waba-actions/internal/envelope"
	"github.com/halcyonops/waba-actions/internal/logging"
)

const usage = `usage: wabactl [flags] <action> [payload-json]

Invokes one action handler directly. The payload is read from the positional
argument, from -f FILE, or from stdin with -f -.

  wabactl list-actions
  wabactl send_text '{"phoneNumberId":"...","to":"...","text":"hi"}'
  wabactl -f request.json create_template

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("wabactl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	file := fs.String("f", "", "read the payload from FILE ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	action := fs.Arg(0)
	registry := actions.NewRegistry()

	if action == "list-actions" {
		for _, name := range registry.Actions() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	payload, err := readPayload(fs, *file)
	if err != nil {
		fmt.Fprintf(stderr, "wabactl: %v\n", err)
		return 2
	}

	logger := logging.New()
	ctx := context.Background()

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "wabactl: load AWS config: %v\n", err)
		return 1
	}
	d := deps.New(deps.ConfigFromEnv(), awsCfg, logger)

	raw, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(stderr, "wabactl: %v\n", err)
		return 2
	}
	env := &envelope.Envelope{
		Kind:      envelope.KindAction,
		Action:    action,
		RequestID: uuid.NewString(),
		Source:    envelope.SourceCLI,
		Payload:   payload,
		Raw:       raw,
	}

	resp, ok := registry.Dispatch(ctx, env, d)
	if !ok {
		fmt.Fprintf(stderr, "wabactl: unknown action %q (try list-actions)\n", action)
		return 2
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "wabactl: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))

	if status, _ := resp["statusCode"].(int); status >= 400 {
		logger.Debug("action returned error status", slog.Int("status", status))
		return 1
	}
	return 0
}

// readPayload resolves the payload from the file flag, the second positional
// argument, or defaults to an empty object.
func readPayload(fs *flag.FlagSet, file string) (map[string]any, error) {
	var data []byte
	var err error

	switch {
	case file == "-":
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	case file != "":
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, err
		}
	case fs.NArg() >= 2:
		data = []byte(fs.Arg(1))
	default:
		data = []byte("{}")
	}

	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return payload, nil
}
