package main

import (
	"strings"
	"testing"
)

func TestFindViolations(t *testing.T) {
	input := `{"ImportPath":"swaphouse/server/internal/round","Imports":["context","swaphouse/server/internal/state"]}
{"ImportPath":"swaphouse/server/internal/sim","Imports":["github.com/gorilla/websocket","swaphouse/server/internal/net/proto"]}`

	violations, err := findViolations(strings.NewReader(input))
	if err != nil {
		t.Fatalf("findViolations: %v", err)
	}
	want := []string{
		"swaphouse/server/internal/sim -> github.com/gorilla/websocket",
		"swaphouse/server/internal/sim -> swaphouse/server/internal/net/proto",
	}
	if len(violations) != len(want) {
		t.Fatalf("expected %v, got %v", want, violations)
	}
	for i := range want {
		if violations[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, violations)
		}
	}
}
