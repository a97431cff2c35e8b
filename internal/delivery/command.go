package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds one delivery command
const DefaultTimeout = 2 * time.Minute

// CommandDeliverer runs an external packaging command with the artifact path as its last
// argument. The command may print {"result": "success|failure", "relaxUpdates": bool}
// on stdout; otherwise the exit status decides the result.
type CommandDeliverer struct {
	argv    []string
	timeout time.Duration
}

// NewCommandDeliverer creates a deliverer for argv
func NewCommandDeliverer(argv []string, timeout time.Duration) (*CommandDeliverer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("delivery command is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandDeliverer{argv: argv, timeout: timeout}, nil
}

// Deliver implements Deliverer
func (d *CommandDeliverer) Deliver(ctx context.Context, path string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := append(append([]string{}, d.argv[1:]...), path)
	//nolint:gosec // G204: the command comes from the operator's configuration
	cmd := exec.CommandContext(ctx, d.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the output pipes must not outlive the timeout by much
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return Outcome{}, fmt.Errorf("failed to run delivery command: %w", runErr)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("delivery command interrupted: %w", err)
	}

	outcome := parseOutput(stdout.Bytes(), runErr == nil)
	if runErr != nil {
		slog.Warn("Delivery command exited with an error",
			"path", path,
			"exit_code", exitErr.ExitCode(),
			"stderr", stderr.String())
		outcome.Result = ResultFailure
	}
	return outcome, nil
}

func parseOutput(stdout []byte, exitOK bool) Outcome {
	outcome := Outcome{Result: ResultFailure}
	if exitOK {
		outcome.Result = ResultSuccess
	}
	if !gjson.ValidBytes(stdout) {
		return outcome
	}
	parsed := gjson.ParseBytes(stdout)
	if r := parsed.Get("result"); r.Exists() {
		if result, err := ParseResult(r.String()); err == nil {
			outcome.Result = result
		}
	}
	outcome.RelaxUpdates = parsed.Get("relaxUpdates").Bool()
	return outcome
}
