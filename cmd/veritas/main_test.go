package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/veritas/backend/internal/detection"
	"github.com/veritas/backend/pkg/apperr"
)

func TestReportedErrorsPrintOnce(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{Use: "video"}
	cmd.SetOut(&stdout)

	err := report(cmd, detection.KindVideo, apperr.Unsupported("cannot read video"))
	if code := exitCode(&stderr, fmt.Errorf("run: %w", err)); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}

	if !strings.HasPrefix(stdout.String(), "Error processing video:") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Fatalf("error printed twice, stderr %q", stderr.String())
	}
	if !errors.Is(err, apperr.ErrUnsupportedInput) {
		t.Fatalf("reported error should keep its cause, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	if code := exitCode(&stderr, nil); code != 0 || stderr.Len() != 0 {
		t.Fatalf("nil error: code %d, stderr %q", code, stderr.String())
	}

	if code := exitCode(&stderr, errors.New("--stride must be between 1 and 60")); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if got := stderr.String(); got != "--stride must be between 1 and 60\n" {
		t.Fatalf("unexpected stderr %q", got)
	}
}
