// Package detect runs the external signature engine over an artifact and
// records rule violations.
package detect

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Match is one engine finding: a rule fired against one event.
type Match struct {
	EventSeq  int64
	RuleTitle string
	Level     string
	Detail    string
}

// Engine defines the behaviour required by the detection handler.
type Engine interface {
	Scan(ctx context.Context, artifactPath string) ([]Match, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the signature engine CLI. The engine scans one file against a
// rules directory and emits CSV findings on stdout, one per line:
// event_seq,rule_title,level,detail.
type Client struct {
	binary   string
	rulesDir string
	timeout  time.Duration
	exec     Executor
}

// NewClient constructs an engine client.
func NewClient(binary, rulesDir string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("engine binary required")
	}
	if strings.TrimSpace(rulesDir) == "" {
		return nil, errors.New("rules directory required")
	}
	client := &Client{
		binary:   binary,
		rulesDir: rulesDir,
		timeout:  time.Duration(timeoutSeconds) * time.Second,
		exec:     commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Scan runs the engine and parses its findings. Output parsing is strict: a
// malformed line fails the scan rather than silently dropping findings.
func (c *Client) Scan(ctx context.Context, artifactPath string) ([]Match, error) {
	scanCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"scan", "--rules", c.rulesDir, "--output", "csv", artifactPath}

	var matches []Match
	var parseErr error
	err := c.exec.Run(scanCtx, c.binary, args, func(line string) {
		if parseErr != nil || strings.TrimSpace(line) == "" {
			return
		}
		match, err := parseMatchLine(line)
		if err != nil {
			parseErr = err
			return
		}
		matches = append(matches, match)
	})
	if err != nil {
		return nil, fmt.Errorf("engine scan: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("engine output: %w", parseErr)
	}
	return matches, nil
}

func parseMatchLine(line string) (Match, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	record, err := reader.Read()
	if err != nil {
		return Match{}, fmt.Errorf("parse finding %q: %w", line, err)
	}
	if len(record) < 3 {
		return Match{}, fmt.Errorf("finding %q has %d fields, want at least 3", line, len(record))
	}
	seq, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return Match{}, fmt.Errorf("finding %q has non-numeric event seq: %w", line, err)
	}
	match := Match{
		EventSeq:  seq,
		RuleTitle: strings.TrimSpace(record[1]),
		Level:     strings.TrimSpace(record[2]),
	}
	if match.RuleTitle == "" {
		return Match{}, fmt.Errorf("finding %q has empty rule title", line)
	}
	if len(record) > 3 {
		match.Detail = strings.TrimSpace(record[3])
	}
	return match, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		onStdout(scanner.Text())
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("engine exited: %w: %s", err, detail)
		}
		return fmt.Errorf("engine exited: %w", err)
	}
	if scanErr != nil && !errors.Is(scanErr, io.EOF) {
		return fmt.Errorf("read engine output: %w", scanErr)
	}
	return nil
}
