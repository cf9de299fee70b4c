package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"herald/pkg/logx"
)

// scriptFetcher returns the scripted error for call n (1-based); past the end
// of the script it succeeds.
type scriptFetcher struct {
	calls  int
	script []error
	data   []byte
}

func (f *scriptFetcher) Fetch(context.Context, MediaRef) ([]byte, error) {
	f.calls++
	if f.calls <= len(f.script) {
		if err := f.script[f.calls-1]; err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

func fastResolver(f Fetcher, maxAttempts int) *MediaResolver {
	r := NewMediaResolver(f, maxAttempts, logx.Nop())
	r.delays = []time.Duration{time.Millisecond}
	return r
}

func TestResolveMemoizes(t *testing.T) {
	t.Parallel()
	f := &scriptFetcher{data: []byte("bytes")}
	r := fastResolver(f, 0)

	ref := MediaRef{FileID: "f-1"}
	first, err := r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve (memoized): %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", f.calls)
	}
	if &first[0] != &second[0] {
		t.Fatal("memoized call returned a different buffer")
	}
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	f := &scriptFetcher{
		script: []error{Transient(errors.New("net")), Transient(errors.New("net"))},
		data:   []byte("bytes"),
	}
	r := fastResolver(f, 6)

	buf, err := r.Resolve(context.Background(), MediaRef{FileID: "f-2"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(buf) != "bytes" {
		t.Fatalf("buf = %q", buf)
	}
	if f.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", f.calls)
	}
}

func TestResolvePermanentStopsImmediately(t *testing.T) {
	t.Parallel()
	f := &scriptFetcher{script: []error{Permanent(errors.New("revoked"))}}
	r := fastResolver(f, 6)

	_, err := r.Resolve(context.Background(), MediaRef{FileID: "f-3"})
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err = %v, want ErrMediaUnavailable", err)
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 (no retry on permanent failure)", f.calls)
	}
}

func TestResolveExhaustsAttemptCap(t *testing.T) {
	t.Parallel()
	f := &scriptFetcher{
		script: []error{Transient(errors.New("net")), Transient(errors.New("net")), Transient(errors.New("net"))},
	}
	r := fastResolver(f, 2)

	_, err := r.Resolve(context.Background(), MediaRef{FileID: "f-4"})
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Fatalf("err = %v, want ErrMediaUnavailable", err)
	}
	if f.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (attempt cap)", f.calls)
	}
}

func TestResolveCancelledBetweenAttempts(t *testing.T) {
	t.Parallel()
	f := &scriptFetcher{script: []error{Transient(errors.New("net"))}}
	r := NewMediaResolver(f, 6, logx.Nop())
	r.delays = []time.Duration{time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, MediaRef{FileID: "f-5"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}
