package detect_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"casefile/internal/detect"
)

type scriptedExecutor struct {
	lines   []string
	err     error
	binary  string
	args    []string
	invoked bool
}

func (s *scriptedExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	s.invoked = true
	s.binary = binary
	s.args = args
	for _, line := range s.lines {
		onStdout(line)
	}
	return s.err
}

func TestScanParsesFindings(t *testing.T) {
	exec := &scriptedExecutor{lines: []string{
		`3,Suspicious PowerShell Download,high,EncodedCommand present`,
		`7,"Rule, With Comma",medium`,
		``,
	}}
	client, err := detect.NewClient("sigma-engine", "/rules", 30, detect.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	matches, err := client.Scan(context.Background(), "/cases/events.jsonl")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	first := matches[0]
	if first.EventSeq != 3 || first.RuleTitle != "Suspicious PowerShell Download" || first.Level != "high" {
		t.Fatalf("unexpected first match: %+v", first)
	}
	if first.Detail != "EncodedCommand present" {
		t.Fatalf("detail = %q", first.Detail)
	}
	if matches[1].RuleTitle != "Rule, With Comma" {
		t.Fatalf("quoted title mishandled: %+v", matches[1])
	}

	if exec.binary != "sigma-engine" {
		t.Fatalf("binary = %q", exec.binary)
	}
	want := []string{"scan", "--rules", "/rules", "--output", "csv", "/cases/events.jsonl"}
	if strings.Join(exec.args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestScanRejectsMalformedFindings(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"too few fields", "3,OnlyTitle"},
		{"non-numeric seq", "abc,Title,high"},
		{"empty title", "3,,high"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &scriptedExecutor{lines: []string{tc.line}}
			client, err := detect.NewClient("sigma-engine", "/rules", 30, detect.WithExecutor(exec))
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if _, err := client.Scan(context.Background(), "/cases/events.jsonl"); err == nil {
				t.Fatal("malformed finding must fail the scan")
			}
		})
	}
}

func TestScanSurfacesEngineExit(t *testing.T) {
	exec := &scriptedExecutor{err: errors.New("exit status 2: rules dir unreadable")}
	client, err := detect.NewClient("sigma-engine", "/rules", 30, detect.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Scan(context.Background(), "/cases/events.jsonl"); err == nil {
		t.Fatal("engine exit must surface")
	}
}

func TestNewClientValidatesConfiguration(t *testing.T) {
	if _, err := detect.NewClient("", "/rules", 30); err == nil {
		t.Fatal("empty binary must be rejected")
	}
	if _, err := detect.NewClient("sigma-engine", "", 30); err == nil {
		t.Fatal("empty rules dir must be rejected")
	}
}
