package slurm

import (
	"context"
	"reflect"
	"testing"

	"gpumon/internal/transport"
)

func TestExpandResolvesHostRange(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"scontrol show hostname 'gpu[01-03]'": "gpu01\ngpu02\ngpu03\n",
	}}
	e := NewExpander(tr)

	hosts := e.Expand(context.Background(), "gpu[01-03]")
	want := []string{"gpu01", "gpu02", "gpu03"}
	if !reflect.DeepEqual(hosts, want) {
		t.Fatalf("unexpected hosts: got %v want %v", hosts, want)
	}
}

func TestExpandCachesSuccessfulResults(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"scontrol show hostname 'gpu[01-02]'": "gpu01\ngpu02\n",
	}}
	e := NewExpander(tr)

	ctx := context.Background()
	first := e.Expand(ctx, "gpu[01-02]")
	second := e.Expand(ctx, "gpu[01-02]")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v then %v", first, second)
	}
	if got := tr.callCount("scontrol show hostname 'gpu[01-02]'"); got != 1 {
		t.Fatalf("expected a single delegate invocation, got %d", got)
	}
}

func TestExpandFallsBackToExpressionOnFailure(t *testing.T) {
	tr := &fakeTransport{errs: map[string]error{
		"scontrol show hostname 'gpu[01-04]'": &transport.RunError{Target: "fake", ExitCode: 1, Stderr: "Invalid hostlist"},
	}}
	e := NewExpander(tr)

	ctx := context.Background()
	hosts := e.Expand(ctx, "gpu[01-04]")
	if !reflect.DeepEqual(hosts, []string{"gpu[01-04]"}) {
		t.Fatalf("expected raw expression fallback, got %v", hosts)
	}

	// Failures are not cached: the next cycle retries the delegate.
	e.Expand(ctx, "gpu[01-04]")
	if got := tr.callCount("scontrol show hostname 'gpu[01-04]'"); got != 2 {
		t.Fatalf("expected failed expansion retried, got %d calls", got)
	}
}

func TestExpandFallsBackOnEmptyOutput(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"scontrol show hostname 'bogus'": "\n",
	}}
	e := NewExpander(tr)

	hosts := e.Expand(context.Background(), "bogus")
	if !reflect.DeepEqual(hosts, []string{"bogus"}) {
		t.Fatalf("expected expression fallback on empty output, got %v", hosts)
	}
}

func TestExpandEmptyExpression(t *testing.T) {
	tr := &fakeTransport{}
	e := NewExpander(tr)

	if hosts := e.Expand(context.Background(), "  "); hosts != nil {
		t.Fatalf("expected nil for empty expression, got %v", hosts)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("expected no delegate invocation for empty expression")
	}
}
