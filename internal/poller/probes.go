package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// HTTPProbe reports ready when a GET on URL returns a 2xx status.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p HTTPProbe) Check(ctx context.Context) error {
	c := p.Client
	if c == nil {
		c = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (p HTTPProbe) Describe() string { return "http:" + p.URL }

// TCPProbe reports ready when the address accepts a connection.
type TCPProbe struct{ Addr string }

func (p TCPProbe) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p TCPProbe) Describe() string { return "tcp:" + p.Addr }

// CommandProbe runs a command that should exit zero when the service is ready.
// Avoids invoking a shell unless obvious shell metacharacters are present.
type CommandProbe struct{ Command string }

func (p CommandProbe) Check(ctx context.Context) error {
	cmd := buildShellAwareCommand(ctx, p.Command)
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("exit code %d", ee.ExitCode())
	}
	return err
}

func (p CommandProbe) Describe() string { return "cmd:" + p.Command }

// FuncProbe adapts a plain function into a Probe; used by callers composing
// probes out of existing clients and by tests.
type FuncProbe struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (p FuncProbe) Check(ctx context.Context) error { return p.Fn(ctx) }
func (p FuncProbe) Describe() string                { return p.Name }

func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		return exec.CommandContext(ctx, "true")
	}
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}
