package main

import (
	"strings"
	"testing"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run("postgres://unused", []string{"sideways"})
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRunRejectsBadSteps(t *testing.T) {
	err := run("postgres://unused", []string{"down", "many"})
	if err == nil || !strings.Contains(err.Error(), "invalid steps") {
		t.Fatalf("expected steps error, got %v", err)
	}
}
