package speech

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingProvider struct {
	calls int
	errs  []error // consumed in order; nil means success
}

func (p *countingProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte("mp3:" + text), nil
}

func newTestSynthesizer(p Provider) *Synthesizer {
	s := NewSynthesizer(p, NewMemoryAssetRepo(), NewMemoryFileStore(), nil, "https://survey.example.com", nil)
	s.sleep = func(time.Duration) {}
	return s
}

func TestSynthesizeCacheIdempotence(t *testing.T) {
	p := &countingProvider{}
	s := newTestSynthesizer(p)
	ctx := context.Background()

	first, err := s.Synthesize(ctx, "How satisfied are you?", "rachel")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	second, err := s.Synthesize(ctx, "How satisfied are you?", "rachel")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical URLs, got %q vs %q", first, second)
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", p.calls)
	}
}

func TestSynthesizeNormalizesTextForKey(t *testing.T) {
	p := &countingProvider{}
	s := newTestSynthesizer(p)
	ctx := context.Background()

	a, _ := s.Synthesize(ctx, "Hello   there", "rachel")
	b, _ := s.Synthesize(ctx, "hello there", "rachel")
	if a != b {
		t.Fatalf("expected normalized texts to share an asset: %q vs %q", a, b)
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", p.calls)
	}
}

func TestSynthesizeDistinctVoicesDistinctAssets(t *testing.T) {
	p := &countingProvider{}
	s := newTestSynthesizer(p)
	ctx := context.Background()

	a, _ := s.Synthesize(ctx, "Hello", "rachel")
	b, _ := s.Synthesize(ctx, "Hello", "adam")
	if a == b {
		t.Fatalf("different voices must not share assets")
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", p.calls)
	}
}

func TestSynthesizeRetriesRateLimit(t *testing.T) {
	p := &countingProvider{errs: []error{ErrRateLimited, ErrRateLimited, nil}}
	s := newTestSynthesizer(p)

	url, err := s.Synthesize(context.Background(), "Hello", "rachel")
	if err != nil {
		t.Fatalf("expected recovery after backoff, got %v", err)
	}
	if url == "" {
		t.Fatalf("expected url")
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", p.calls)
	}
}

func TestSynthesizeGivesUpAfterBoundedRetries(t *testing.T) {
	p := &countingProvider{errs: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited, ErrRateLimited}}
	s := newTestSynthesizer(p)

	_, err := s.Synthesize(context.Background(), "Hello", "rachel")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected initial call + 2 retries, got %d", p.calls)
	}
}

func TestSynthesizeAuthErrorNotRetried(t *testing.T) {
	p := &countingProvider{errs: []error{ErrAuth}}
	s := newTestSynthesizer(p)

	_, err := s.Synthesize(context.Background(), "Hello", "rachel")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", p.calls)
	}
}

func TestSynthesizeNoProvider(t *testing.T) {
	s := newTestSynthesizer(nil)
	if _, err := s.Synthesize(context.Background(), "Hello", "rachel"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPrepareScriptPreservesOrderAndSkipsBlanks(t *testing.T) {
	p := &countingProvider{}
	s := newTestSynthesizer(p)

	urls, err := s.PrepareScript(context.Background(), []string{"Intro", "", "  ", "Question one"}, "rachel")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(urls) != 4 {
		t.Fatalf("expected positional alignment, got %d urls", len(urls))
	}
	if urls[0] == "" || urls[3] == "" {
		t.Fatalf("expected urls for non-blank segments: %v", urls)
	}
	if urls[1] != "" || urls[2] != "" {
		t.Fatalf("blank segments must stay empty: %v", urls)
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", p.calls)
	}
}

func TestPrepareScriptReportsTotalFailure(t *testing.T) {
	p := &countingProvider{errs: []error{ErrAuth, ErrAuth}}
	s := newTestSynthesizer(p)

	urls, err := s.PrepareScript(context.Background(), []string{"a", "b"}, "rachel")
	if err == nil {
		t.Fatalf("expected batch failure error")
	}
	if urls[0] != "" || urls[1] != "" {
		t.Fatalf("expected no urls, got %v", urls)
	}
}

func TestPrepareScriptPartialFailureDegradesQuietly(t *testing.T) {
	p := &countingProvider{errs: []error{ErrAuth, nil}}
	s := newTestSynthesizer(p)

	urls, err := s.PrepareScript(context.Background(), []string{"a", "b"}, "rachel")
	if err != nil {
		t.Fatalf("partial failure must not error the batch: %v", err)
	}
	if urls[0] != "" {
		t.Fatalf("failed segment should have no url")
	}
	if urls[1] == "" {
		t.Fatalf("surviving segment should have a url")
	}
}

func TestCacheKeyStability(t *testing.T) {
	a := CacheKey("Hello World", "v1")
	b := CacheKey("  hello   world ", "v1")
	if a != b {
		t.Fatalf("normalization should make keys equal")
	}
	if a == CacheKey("hello world", "v2") {
		t.Fatalf("voice must be part of the key")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex key, got %q", a)
	}
}
