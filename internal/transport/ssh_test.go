package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestQuoteArg(t *testing.T) {
	got := QuoteArg("echo 'hello world'")
	want := `'echo '"'"'hello world'"'"''`
	if got != want {
		t.Fatalf("unexpected quote output\nwant: %s\ngot:  %s", want, got)
	}
	if QuoteArg("") != "''" {
		t.Fatalf("expected empty string to quote to ''")
	}
	if QuoteArg("gpu[01-04]") != "'gpu[01-04]'" {
		t.Fatalf("expected bracket expression to be wrapped verbatim")
	}
}

func TestBuildControlPath(t *testing.T) {
	path := buildControlPath(SSHOptions{
		Target:       "host-a",
		ConfigPath:   "/tmp/cfg",
		IdentityFile: "/tmp/key",
		Port:         22,
	})
	if path == "" {
		t.Fatalf("expected non-empty control path")
	}
	path2 := buildControlPath(SSHOptions{
		Target:       "host-a",
		ConfigPath:   "/tmp/cfg",
		IdentityFile: "/tmp/key",
		Port:         22,
	})
	if path != path2 {
		t.Fatalf("expected deterministic control path, got %q vs %q", path, path2)
	}
}

func TestBuildSSHArgsIncludesResilienceOptions(t *testing.T) {
	tr := NewSSHTransport(SSHOptions{
		Target:         "user@host",
		ConfigPath:     "/tmp/ssh_config",
		IdentityFile:   "/tmp/id",
		Port:           2222,
		ConnectTimeout: 1500 * time.Millisecond,
	})
	args := tr.buildSSHArgs("echo hello")
	joined := strings.Join(args, " ")

	required := []string{
		"ConnectTimeout=2",
		"BatchMode=yes",
		"ConnectionAttempts=2",
		"ServerAliveInterval=15",
		"ServerAliveCountMax=3",
		"TCPKeepAlive=yes",
		"ControlMaster=auto",
		"ControlPersist=300",
		"StreamLocalBindUnlink=yes",
		"ControlPath=",
		"-F /tmp/ssh_config",
		"-i /tmp/id",
		"-p 2222",
		"user@host",
		"bash -lc 'echo hello'",
	}
	for _, token := range required {
		if !strings.Contains(joined, token) {
			t.Fatalf("expected token %q in args: %s", token, joined)
		}
	}
}

func TestIsRetryableClassifiesTransportFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "timeout flag", err: &RunError{Target: "ssh:login", Timeout: true}, want: true},
		{name: "ssh exit 255", err: &RunError{Target: "ssh:login", ExitCode: 255}, want: true},
		{name: "stderr signal", err: &RunError{Target: "ssh:login", ExitCode: 1, Stderr: "kex_exchange: Connection reset by peer"}, want: true},
		{name: "command missing", err: &RunError{Target: "local", ExitCode: 127, Stderr: "bash: scontrol: command not found"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable=%v want %v", tc.name, got, tc.want)
		}
	}
}
