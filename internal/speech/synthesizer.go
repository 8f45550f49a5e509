package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "speech:asset:"
	redisIndexTTL  = 24 * time.Hour

	maxRateLimitRetries = 2
	baseBackoff         = 500 * time.Millisecond
)

// Synthesizer is the caching layer over a synthesis Provider.
//
// Lookup order: Redis hot index, then the durable asset row, then the
// provider. The computed key is a stable hash of (normalized text, voice id),
// so identical prompts always resolve to the same URL and the provider is
// invoked at most once per distinct prompt.
type Synthesizer struct {
	provider Provider
	assets   AssetRepository
	files    FileStore
	rdb      *redis.Client // optional

	publicBaseURL string

	log   *slog.Logger
	clock func() time.Time
	sleep func(time.Duration)
}

func NewSynthesizer(provider Provider, assets AssetRepository, files FileStore, rdb *redis.Client, publicBaseURL string, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{
		provider:      provider,
		assets:        assets,
		files:         files,
		rdb:           rdb,
		publicBaseURL: publicBaseURL,
		log:           log,
		clock:         time.Now,
		sleep:         time.Sleep,
	}
}

// CacheKey returns the stable content hash for a (text, voice) pair.
// Normalization collapses whitespace and case so trivially different
// renderings of the same prompt share one asset.
func CacheKey(text, voiceID string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(norm + "|" + voiceID))
	return hex.EncodeToString(sum[:])
}

// Synthesize returns the asset URL for the given text, generating it on a
// cache miss. Rate-limit errors are retried with bounded exponential
// backoff; auth and validation errors surface immediately.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	if s.provider == nil {
		return "", ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidRequest)
	}

	key := CacheKey(text, voiceID)

	if url, ok := s.lookupRedis(ctx, key); ok {
		return url, nil
	}
	if a, ok, err := s.assets.Get(ctx, key); err != nil {
		// Index lookup failure is not fatal; fall through to the provider.
		s.log.Warn("asset index lookup failed", "key", key, "err", err)
	} else if ok {
		s.indexRedis(ctx, key, a.URL)
		return a.URL, nil
	}

	audio, err := s.synthesizeWithRetry(ctx, text, voiceID)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/audio/%s.mp3", s.publicBaseURL, key)
	if err := s.files.Save(key, audio); err != nil {
		return "", fmt.Errorf("speech: save asset: %w", err)
	}
	asset := AudioAsset{Key: key, VoiceID: voiceID, URL: url, CreatedAt: s.clock().UTC()}
	if err := s.assets.Put(ctx, asset); err != nil {
		// The file exists and is servable; a missing index row only costs a
		// future regeneration.
		s.log.Warn("asset index write failed", "key", key, "err", err)
	}
	s.indexRedis(ctx, key, url)
	return url, nil
}

// PrepareScript synthesizes a batch of prompt texts sequentially, skipping
// blank segments. The returned slice is positionally aligned with texts
// (blank segments yield ""), because turn markup references assets by index.
//
// The error is non-nil only when every non-blank segment failed; partial
// success degrades per segment and the caller substitutes <Say> for the
// missing pieces.
func (s *Synthesizer) PrepareScript(ctx context.Context, texts []string, voiceID string) ([]string, error) {
	urls := make([]string, len(texts))
	attempted := 0
	failed := 0

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		attempted++
		url, err := s.Synthesize(ctx, text, voiceID)
		if err != nil {
			failed++
			s.log.Warn("segment synthesis failed", "index", i, "err", err)
			continue
		}
		urls[i] = url
	}

	if attempted > 0 && failed == attempted {
		return urls, fmt.Errorf("speech: entire script failed (%d segments)", failed)
	}
	return urls, nil
}

func (s *Synthesizer) synthesizeWithRetry(ctx context.Context, text, voiceID string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		audio, err := s.provider.Synthesize(ctx, text, voiceID)
		if err == nil {
			return audio, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err
		if attempt >= maxRateLimitRetries {
			break
		}
		s.sleep(baseBackoff << attempt)
	}
	return nil, lastErr
}

func (s *Synthesizer) lookupRedis(ctx context.Context, key string) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	url, err := s.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("redis asset lookup failed", "key", key, "err", err)
		}
		return "", false
	}
	return url, true
}

func (s *Synthesizer) indexRedis(ctx context.Context, key, url string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+key, url, redisIndexTTL).Err(); err != nil {
		s.log.Warn("redis asset index failed", "key", key, "err", err)
	}
}
