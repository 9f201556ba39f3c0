package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/MixasV/werpool/internal/domain"
)

// TransactionRequest describes one signed transaction to submit.
type TransactionRequest struct {
	Path      string // transaction descriptor, e.g. "transactions/executeTrade.cdc"
	Arguments []Value
	Signer    string
	Network   string
}

// TransactionResult is the parsed outcome of a sealed transaction.
type TransactionResult struct {
	TransactionID string
}

// ScriptRequest describes one read-only script execution.
type ScriptRequest struct {
	Path      string
	Arguments []Value
	Network   string
}

// Runner executes one CLI invocation. It exists so tests can stub the CLI
// without spawning processes.
type Runner func(ctx context.Context, args []string) (stdout, stderr []byte, err error)

// Client shells out to the network CLI. The CLI owns signing and sealing;
// this process treats a non-zero exit or unparsable output as the ledger
// being unavailable.
type Client struct {
	binary string
	logger *slog.Logger
	runner Runner
}

// NewClient creates a Client that invokes the given CLI binary.
func NewClient(binary string, logger *slog.Logger) *Client {
	c := &Client{binary: binary, logger: logger}
	c.runner = c.execRun
	return c
}

// NewClientWithRunner creates a Client with a custom Runner.
func NewClientWithRunner(runner Runner, logger *slog.Logger) *Client {
	return &Client{binary: "ledger", logger: logger, runner: runner}
}

var txIDPattern = regexp.MustCompile(`Transaction ID:\s*([0-9a-fA-F]+)`)

// Submit sends a transaction and waits for it to seal. The returned error
// wraps domain.ErrLedgerUnavailable for any transport or CLI failure.
func (c *Client) Submit(ctx context.Context, req TransactionRequest) (TransactionResult, error) {
	argsJSON, err := json.Marshal(req.Arguments)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("ledger: marshal arguments: %w", err)
	}

	args := []string{
		"transactions", "send", req.Path,
		"--args-json", string(argsJSON),
		"--signer", req.Signer,
		"--yes", "--wait",
	}
	if req.Network != "" {
		args = append(args, "--network", req.Network)
	}

	stdout, stderr, err := c.runner(ctx, args)
	if err != nil {
		c.logger.ErrorContext(ctx, "ledger: transaction failed",
			slog.String("path", req.Path),
			slog.String("stderr", strings.TrimSpace(string(stderr))),
			slog.String("error", err.Error()),
		)
		return TransactionResult{}, fmt.Errorf("%w: submit %s: %v", domain.ErrLedgerUnavailable, req.Path, err)
	}

	match := txIDPattern.FindSubmatch(stdout)
	if match == nil {
		return TransactionResult{}, fmt.Errorf("%w: no transaction id in output for %s", domain.ErrLedgerUnavailable, req.Path)
	}

	return TransactionResult{TransactionID: string(match[1])}, nil
}

// ExecuteScript runs a read-only script and decodes its tagged-union result.
func (c *Client) ExecuteScript(ctx context.Context, req ScriptRequest) (Value, error) {
	argsJSON, err := json.Marshal(req.Arguments)
	if err != nil {
		return Value{}, fmt.Errorf("ledger: marshal arguments: %w", err)
	}

	args := []string{
		"scripts", "execute", req.Path,
		"--args-json", string(argsJSON),
		"--output", "json",
	}
	if req.Network != "" {
		args = append(args, "--network", req.Network)
	}

	stdout, stderr, err := c.runner(ctx, args)
	if err != nil {
		c.logger.ErrorContext(ctx, "ledger: script failed",
			slog.String("path", req.Path),
			slog.String("stderr", strings.TrimSpace(string(stderr))),
			slog.String("error", err.Error()),
		)
		return Value{}, fmt.Errorf("%w: script %s: %v", domain.ErrLedgerUnavailable, req.Path, err)
	}

	value, err := Decode(bytes.TrimSpace(stdout))
	if err != nil {
		return Value{}, fmt.Errorf("ledger: script %s: %w", req.Path, err)
	}
	return value, nil
}

func (c *Client) execRun(ctx context.Context, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
