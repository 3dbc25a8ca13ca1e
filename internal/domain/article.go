package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrJobNotFound     = errors.New("job not found")
)

// Article is a raw research submission. RawContent is immutable once created.
type Article struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Title            string     `db:"title" json:"title"`
	Category         string     `db:"category" json:"category"`
	Template         string     `db:"template" json:"template"`
	RawContent       string     `db:"raw_content" json:"raw_content"`
	ContentHash      string     `db:"content_hash" json:"content_hash"`
	Abstract         *string    `db:"abstract" json:"abstract,omitempty"`
	FormattedContent *string    `db:"formatted_content" json:"formatted_content,omitempty"`
	FormattedAt      *time.Time `db:"formatted_at" json:"formatted_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// ContentHash returns the hex SHA-256 digest of raw article content.
func ContentHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FormattedResult is a cache entry keyed by content hash. The payload is never
// rewritten; only access metadata changes on hits.
type FormattedResult struct {
	ContentHash     string    `db:"content_hash" json:"content_hash"`
	FormattedOutput string    `db:"formatted_output" json:"formatted_output"`
	ModelUsed       string    `db:"model_used" json:"model_used"`
	TokenCount      int       `db:"token_count" json:"token_count"`
	AccessCount     int64     `db:"access_count" json:"access_count"`
	LastAccessedAt  time.Time `db:"last_accessed_at" json:"last_accessed_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
