package speech

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AudioAsset maps a content hash of (normalized text, voice id) to a
// playable URL. Assets are write-once: identical inputs always resolve to
// the same asset, and nothing invalidates them short of manual deletion.
type AudioAsset struct {
	Key       string    `json:"key" db:"key"`
	VoiceID   string    `json:"voice_id" db:"voice_id"`
	URL       string    `json:"url" db:"url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AssetRepository is the durable index of synthesized assets.
type AssetRepository interface {
	Get(ctx context.Context, key string) (AudioAsset, bool, error)
	Put(ctx context.Context, a AudioAsset) error
}

// PostgresAssetRepo stores the asset index in the audio_assets table.
type PostgresAssetRepo struct {
	db *sql.DB
}

func NewPostgresAssetRepo(db *sql.DB) *PostgresAssetRepo {
	return &PostgresAssetRepo{db: db}
}

func (r *PostgresAssetRepo) Get(ctx context.Context, key string) (AudioAsset, bool, error) {
	const q = `
SELECT key, voice_id, url, created_at
FROM audio_assets
WHERE key = $1
`
	var a AudioAsset
	if err := r.db.QueryRowContext(ctx, q, key).Scan(&a.Key, &a.VoiceID, &a.URL, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AudioAsset{}, false, nil
		}
		return AudioAsset{}, false, err
	}
	return a, true, nil
}

func (r *PostgresAssetRepo) Put(ctx context.Context, a AudioAsset) error {
	// Write-once: a concurrent insert of the same key wins and that is fine,
	// since identical keys imply identical content.
	const q = `
INSERT INTO audio_assets (key, voice_id, url, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (key) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q, a.Key, a.VoiceID, a.URL, a.CreatedAt)
	return err
}

// MemoryAssetRepo is an in-memory AssetRepository for tests.
type MemoryAssetRepo struct {
	assets map[string]AudioAsset
}

func NewMemoryAssetRepo() *MemoryAssetRepo {
	return &MemoryAssetRepo{assets: make(map[string]AudioAsset)}
}

func (r *MemoryAssetRepo) Get(ctx context.Context, key string) (AudioAsset, bool, error) {
	a, ok := r.assets[key]
	return a, ok, nil
}

func (r *MemoryAssetRepo) Put(ctx context.Context, a AudioAsset) error {
	if _, exists := r.assets[a.Key]; !exists {
		r.assets[a.Key] = a
	}
	return nil
}

// FileStore persists raw audio bytes so the gateway can fetch them over HTTP.
type FileStore interface {
	Save(key string, data []byte) error
}

// DiskFileStore writes assets under a local directory which is served by the
// /audio static route.
type DiskFileStore struct {
	dir string
}

func NewDiskFileStore(dir string) (*DiskFileStore, error) {
	if dir == "" {
		return nil, errors.New("speech: asset dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create asset dir: %w", err)
	}
	return &DiskFileStore{dir: dir}, nil
}

func (s *DiskFileStore) Save(key string, data []byte) error {
	path := filepath.Join(s.dir, key+".mp3")
	if _, err := os.Stat(path); err == nil {
		// Write-once.
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}

// MemoryFileStore is a FileStore for tests.
type MemoryFileStore struct {
	files map[string][]byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string][]byte)}
}

func (s *MemoryFileStore) Save(key string, data []byte) error {
	if _, ok := s.files[key]; !ok {
		s.files[key] = data
	}
	return nil
}
