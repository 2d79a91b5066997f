// Package usage persists a log of proxied upstream calls.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/promptdock/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Record describes one finished proxy call.
type Record struct {
	UserID      uint64
	KeyID       uint64
	Provider    string
	Endpoint    string
	Method      string
	Role        string
	Status      int
	Failed      bool
	Latency     time.Duration
	Bytes       int
	RequestedAt time.Time
}

// writeTimeout bounds a single insert; it is detached from the request context.
const writeTimeout = 5 * time.Second

// maxListLimit caps List page sizes.
const maxListLimit = 200

// GormRecorder stores records in the proxy_calls table.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder. A nil db yields nil.
func NewGormRecorder(db *gorm.DB) *GormRecorder {
	if db == nil {
		return nil
	}
	return &GormRecorder{db: db}
}

// Record inserts rec. Failures are logged and never reach the caller.
func (r *GormRecorder) Record(_ context.Context, rec Record) {
	if r == nil || r.db == nil {
		return
	}
	dbCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	row := models.ProxyCall{
		UserID:      rec.UserID,
		KeyID:       rec.KeyID,
		Provider:    strings.TrimSpace(rec.Provider),
		Endpoint:    rec.Endpoint,
		Method:      rec.Method,
		Role:        rec.Role,
		Status:      rec.Status,
		Failed:      rec.Failed,
		LatencyMs:   rec.Latency.Milliseconds(),
		BytesOut:    int64(rec.Bytes),
		RequestedAt: normalizeTime(rec.RequestedAt),
		CreatedAt:   time.Now().UTC(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("usage: failed to persist proxy call")
	}
}

// Summary aggregates a user's calls per provider.
type Summary struct {
	Provider  string `json:"provider"`
	Calls     int64  `json:"calls"`
	Failed    int64  `json:"failed"`
	LatencyMs int64  `json:"avg_latency_ms"`
}

// List returns the user's most recent calls, newest first.
func (r *GormRecorder) List(ctx context.Context, userID uint64, limit int) ([]models.ProxyCall, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("usage: not initialized")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	var rows []models.ProxyCall
	if errFind := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("requested_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("usage: list: %w", errFind)
	}
	return rows, nil
}

// Summarize groups the user's calls since the given time by provider.
func (r *GormRecorder) Summarize(ctx context.Context, userID uint64, since time.Time) ([]Summary, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("usage: not initialized")
	}
	var rows []struct {
		Provider  string
		Calls     int64
		Failed    int64
		LatencyMs float64
	}
	errScan := r.db.WithContext(ctx).Model(&models.ProxyCall{}).
		Select("provider, COUNT(*) AS calls, SUM(CASE WHEN failed THEN 1 ELSE 0 END) AS failed, AVG(latency_ms) AS latency_ms").
		Where("user_id = ? AND requested_at >= ?", userID, since.UTC()).
		Group("provider").
		Order("provider ASC").
		Scan(&rows).Error
	if errScan != nil {
		return nil, fmt.Errorf("usage: summarize: %w", errScan)
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summary{
			Provider:  row.Provider,
			Calls:     row.Calls,
			Failed:    row.Failed,
			LatencyMs: int64(row.LatencyMs + 0.5),
		})
	}
	return out, nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
