// Package journal keeps a sqlite history of acquisition sessions
package journal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/events"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// DefaultSlowQueryThreshold is the duration above which queries are logged as slow
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// SessionRecord is one session's lifecycle summary
type SessionRecord struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	SessionID  string  `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	DeviceID   string  `gorm:"index;size:128;not null" json:"device_id"`
	Board      string  `gorm:"size:64" json:"board"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
	Capacity   int     `json:"capacity"`
	Policy     string  `gorm:"size:32" json:"policy"`
	State      string  `gorm:"index;size:16" json:"state"`

	Accepted    uint64 `json:"accepted"`
	Dropped     uint64 `json:"dropped"`
	Overwritten uint64 `json:"overwritten"`
	Rejected    uint64 `json:"rejected"`
	Discarded   uint64 `json:"discarded"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Journal stores session records. It is an events.EventConsumer.
type Journal struct {
	db   *gorm.DB
	path string
	mu   sync.Mutex // sqlite allows one writer
}

var _ events.EventConsumer = (*Journal)(nil)

// GetLogger returns the journal module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("journal")
}

// Open opens or creates the journal database at path and migrates the schema
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("journal").
				Category(errors.CategoryFileIO).
				Context("operation", "create_journal_dir").
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("operation", "open_journal").
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		_ = closeDB(db)
		return nil, errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate_journal").
			Build()
	}

	GetLogger().Info("session journal opened", logger.String("path", path))
	return &Journal{db: db, path: path}, nil
}

// Name implements events.EventConsumer
func (j *Journal) Name() string { return "journal" }

// ProcessEvent implements events.EventConsumer
func (j *Journal) ProcessEvent(event events.SessionEvent) error {
	return j.Consume(event)
}

// Consume upserts the record for the event's session
func (j *Journal) Consume(event events.SessionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	stale, err := j.isStale(event)
	if err != nil {
		return err
	}
	if stale {
		GetLogger().Debug("skipping out of order session event",
			logger.String("session_id", event.SessionID),
			logger.String("state", event.To.String()))
		return nil
	}
	rec := recordFrom(event)

	// columns a later event may change
	updates := []string{"state", "accepted", "dropped", "overwritten", "rejected", "discarded", "updated_at"}
	if event.Stats.Spec.Name != "" {
		updates = append(updates, "board", "channels", "sample_rate")
	}
	if event.Stats.Buffer.Capacity > 0 {
		updates = append(updates, "capacity", "policy")
	}
	if rec.StartedAt != nil {
		updates = append(updates, "started_at")
	}
	if rec.StoppedAt != nil {
		updates = append(updates, "stopped_at")
	}
	if rec.ReleasedAt != nil {
		updates = append(updates, "released_at")
	}

	err = j.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&rec).Error
	if err != nil {
		return errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("session_id", event.SessionID).
			Context("state", event.To.String()).
			Timing("upsert_session", time.Since(start)).
			Build()
	}
	return nil
}

// isStale reports whether the stored record already holds a later state than
// the event. States only move forward, so such an event arrived out of order.
func (j *Journal) isStale(event events.SessionEvent) (bool, error) {
	var stored []string
	err := j.db.Model(&SessionRecord{}).
		Where("session_id = ?", event.SessionID).
		Limit(1).
		Pluck("state", &stored).Error
	if err != nil {
		return false, errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("operation", "load_session_state").
			Context("session_id", event.SessionID).
			Build()
	}
	if len(stored) == 0 {
		return false, nil
	}
	var current acquisition.State
	if err := current.UnmarshalText([]byte(stored[0])); err != nil {
		return false, nil
	}
	return event.To < current, nil
}

func recordFrom(event events.SessionEvent) SessionRecord {
	s := event.Stats
	rec := SessionRecord{
		SessionID:   event.SessionID,
		DeviceID:    event.DeviceID,
		Board:       s.Spec.Name,
		Channels:    s.Spec.Channels,
		SampleRate:  s.Spec.SampleRate,
		Capacity:    s.Buffer.Capacity,
		State:       event.To.String(),
		Accepted:    s.Buffer.Accepted,
		Dropped:     s.Buffer.Dropped,
		Overwritten: s.Buffer.Overwritten,
		Rejected:    s.Buffer.Rejected,
		Discarded:   s.Buffer.Discarded,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   event.Timestamp,
	}
	if s.Buffer.Capacity > 0 {
		rec.Policy = s.Buffer.Policy.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = event.Timestamp
	}
	if !s.StartedAt.IsZero() {
		rec.StartedAt = &s.StartedAt
	}
	if !s.StoppedAt.IsZero() {
		rec.StoppedAt = &s.StoppedAt
	}
	if event.To == acquisition.StateReleased {
		at := event.Timestamp
		rec.ReleasedAt = &at
	}
	return rec
}

// List returns the most recently created sessions first; limit <= 0 returns all
func (j *Journal) List(limit int) ([]SessionRecord, error) {
	var records []SessionRecord
	q := j.db.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("operation", "list_sessions").
			Build()
	}
	return records, nil
}

// Get returns the record for a session id
func (j *Journal) Get(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	err := j.db.Where("session_id = ?", sessionID).First(&rec).Error
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.New(err).
			Component("journal").
			Category(errors.CategoryNotFound).
			Context("session_id", sessionID).
			Build()
	default:
		return nil, errors.New(err).
			Component("journal").
			Category(errors.CategoryDatabase).
			Context("operation", "get_session").
			Build()
	}
}

// Close closes the underlying database
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return closeDB(j.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
