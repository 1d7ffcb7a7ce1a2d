package controller

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEncodePowerShell(t *testing.T) {
	// -EncodedCommand expects UTF-16LE base64.
	// "Get-Date" in UTF-16LE: 47 00 65 00 74 00 2D 00 44 00 61 00 74 00 65 00
	encoded := encodePowerShell("Get-Date")
	if encoded != "RwBlAHQALQBEAGEAdABlAA==" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
}

func TestSplitString(t *testing.T) {
	tests := []struct {
		input    string
		size     int
		expected int
	}{
		{"hello", 3, 2},
		{"hello", 10, 1},
		{"", 5, 0},
		{"abcdef", 2, 3},
		{"abcdefg", 3, 3},
	}

	for _, tt := range tests {
		chunks := splitString(tt.input, tt.size)
		if len(chunks) != tt.expected {
			t.Fatalf("splitString(%q, %d) = %d chunks, want %d", tt.input, tt.size, len(chunks), tt.expected)
		}
		if joined := strings.Join(chunks, ""); joined != tt.input {
			t.Fatalf("reassembled %q, want %q", joined, tt.input)
		}
	}
}

func TestInvalidateUnknownSession(t *testing.T) {
	exec := NewExecutor(zerolog.Nop())
	exec.invalidateSession("nonexistent")
	if len(exec.sessions) != 0 {
		t.Fatal("session cache should stay empty")
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct{ in, want string }{
		{"one\ntwo\nthree\n", "three"},
		{"only", "only"},
		{"", ""},
		{"trailing\n\n\n", "trailing"},
	}
	for _, tt := range tests {
		if got := lastLine(tt.in); got != tt.want {
			t.Fatalf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
