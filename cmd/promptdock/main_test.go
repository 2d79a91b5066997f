package main

import (
	"context"
	"strings"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected error for port %d", port)
		}
	}
	if err := validatePort(8318); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"-port", "8318", "serve-forever"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err = run(context.Background(), []string{"-port", "0"}); err == nil {
		t.Fatalf("expected invalid port error")
	}
}
