package main

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestConfirm(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"whatever\n", false},
		{"", false}, // EOF declines
	}
	for _, tc := range cases {
		var out strings.Builder
		got, err := confirm(strings.NewReader(tc.input), &out, "Proceed?")
		if err != nil {
			t.Fatalf("input %q: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("input %q: expected %v", tc.input, tc.want)
		}
		if !strings.Contains(out.String(), "Proceed?") {
			t.Fatalf("prompt not printed: %q", out.String())
		}
		if !got && !strings.Contains(out.String(), "aborted") {
			t.Fatalf("decline not announced: %q", out.String())
		}
	}
}

func TestSignalContextCancelsOnInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}

	ctx, stop := signalContext()
	defer stop()

	self, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("find own process: %v", err)
	}
	if err := self.Signal(os.Interrupt); err != nil {
		t.Fatalf("send interrupt: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by interrupt")
	}
}
