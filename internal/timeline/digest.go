package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/flareline/internal/models"
)

// NotificationLog remembers which patterns went out in each user's digest.
type NotificationLog interface {
	FindNotified(ctx context.Context, userID string) (map[string]models.NotifiedRecord, error)
	SaveNotified(ctx context.Context, userID string, records []models.NotifiedRecord) error
}

// FilterRecentlySent drops patterns that were included in userID's digest
// within cooldown, unless they have gained occurrences since. Returns a
// non-nil slice.
func (s *Service) FilterRecentlySent(ctx context.Context, userID string, patterns []models.DetectedPattern, cooldown time.Duration) ([]models.DetectedPattern, error) {
	notified, err := s.notifications.FindNotified(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notified patterns: %w", err)
	}

	now := s.now()
	result := []models.DetectedPattern{}
	for _, p := range patterns {
		rec, exists := notified[p.ID]
		if exists && now.Sub(rec.SentAt) < cooldown && p.Frequency <= rec.Frequency {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

// RecordNotified marks patterns as sent to userID at the current time.
// Call this after a successful digest delivery.
func (s *Service) RecordNotified(ctx context.Context, userID string, patterns []models.DetectedPattern) error {
	now := s.now()
	records := make([]models.NotifiedRecord, len(patterns))
	for i, p := range patterns {
		records[i] = models.NotifiedRecord{PatternID: p.ID, Frequency: p.Frequency, SentAt: now}
	}
	if err := s.notifications.SaveNotified(ctx, userID, records); err != nil {
		return fmt.Errorf("failed to record notified patterns: %w", err)
	}
	return nil
}

// memoryLog is the NotificationLog used when none is configured. It only
// lives as long as the Service.
type memoryLog struct {
	mu    sync.Mutex
	users map[string]map[string]models.NotifiedRecord
}

func newMemoryLog() *memoryLog {
	return &memoryLog{users: make(map[string]map[string]models.NotifiedRecord)}
}

func (m *memoryLog) FindNotified(_ context.Context, userID string) (map[string]models.NotifiedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.NotifiedRecord, len(m.users[userID]))
	for id, r := range m.users[userID] {
		out[id] = r
	}
	return out, nil
}

func (m *memoryLog) SaveNotified(_ context.Context, userID string, records []models.NotifiedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		user = make(map[string]models.NotifiedRecord)
		m.users[userID] = user
	}
	for _, r := range records {
		user[r.PatternID] = r
	}
	return nil
}
