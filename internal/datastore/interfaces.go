// Package datastore persists imported feed records through gorm.
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// Outcome is the result of an upsert.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "none"
	}
}

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	EnsureEventType(ctx context.Context, id uint, description string) error
	UpsertSpaceWeatherEvent(ctx context.Context, event *SpaceWeatherEvent) (Outcome, error)
	UpsertDailyImagery(ctx context.Context, entry *DailyImageryEntry) (Outcome, error)
	GetSpaceWeatherEvent(ctx context.Context, externalID string) (*SpaceWeatherEvent, error)
	GetDailyImagery(ctx context.Context, date string) (*DailyImageryEntry, error)
	LatestDailyImagery(ctx context.Context, onOrBefore string) (*DailyImageryEntry, error)
	ListRecentDailyImagery(ctx context.Context, limit int) ([]DailyImageryEntry, error)
	CountSpaceWeatherEvents(ctx context.Context) (int64, error)
	CountDailyImagery(ctx context.Context) (int64, error)
}

// Observer receives upsert timings.
type Observer interface {
	RecordUpsertDuration(entity string, d time.Duration)
}

// DataStore implements Interface on a gorm database. Backends embed it and
// provide Open.
type DataStore struct {
	DB       *gorm.DB
	log      logger.Logger
	observer Observer
}

// Option configures the embedded DataStore.
type Option func(*DataStore)

// WithLogger sets the datastore logger.
func WithLogger(l logger.Logger) Option {
	return func(ds *DataStore) { ds.log = l }
}

// WithObserver records upsert timings through o.
func WithObserver(o Observer) Option {
	return func(ds *DataStore) { ds.observer = o }
}

func newDataStore(opts []Option) DataStore {
	ds := DataStore{}
	for _, opt := range opts {
		opt(&ds)
	}
	if ds.log == nil {
		ds.log = logger.NewDiscardLogger()
	}
	return ds
}

// New returns the backend enabled in settings. It does not open it.
func New(settings *conf.Settings, opts ...Option) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: newDataStore(opts), Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: newDataStore(opts), Settings: settings}, nil
	case settings.Output.Postgres.Enabled:
		return &PostgresStore{DataStore: newDataStore(opts), Settings: settings}, nil
	default:
		return nil, errors.Newf("no database backend enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// openWith opens the gorm connection and migrates the schema. A positive
// maxOpenConns caps the pool before any statement runs.
func (ds *DataStore) openWith(dialector gorm.Dialector, dbType, connectionInfo string, maxOpenConns int) error {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(ds.log, slowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return dbError(err, "open", "db_type", dbType)
	}
	if maxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return dbError(err, "open", "db_type", dbType)
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	ds.DB = db
	return ds.performAutoMigration(dbType, connectionInfo)
}

func (ds *DataStore) performAutoMigration(dbType, connectionInfo string) error {
	start := time.Now()
	if err := ds.DB.AutoMigrate(&EventType{}, &SpaceWeatherEvent{}, &DailyImageryEntry{}); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err), "migrate", "db_type", dbType)
	}
	ds.log.Info("database ready",
		logger.String("db_type", dbType),
		logger.String("connection", connectionInfo),
		logger.Duration("migration", time.Since(start)))
	return nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return dbError(fmt.Errorf("database connection is not initialized"), "close")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

// EnsureEventType creates the event type if it does not exist yet.
func (ds *DataStore) EnsureEventType(ctx context.Context, id uint, description string) error {
	if id == 0 {
		return validationError("event type id must be positive", "id")
	}
	var et EventType
	err := ds.DB.WithContext(ctx).
		Where(EventType{ID: id}).
		Attrs(EventType{Description: description}).
		FirstOrCreate(&et).Error
	if err != nil {
		return dbError(err, "ensure_event_type", "id", id)
	}
	return nil
}

// GetSpaceWeatherEvent looks up an event by external id.
func (ds *DataStore) GetSpaceWeatherEvent(ctx context.Context, externalID string) (*SpaceWeatherEvent, error) {
	var ev SpaceWeatherEvent
	err := ds.DB.WithContext(ctx).Where("external_id = ?", externalID).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(entitySpaceWeatherEvent, externalID)
	}
	if err != nil {
		return nil, dbError(err, "get", "entity", entitySpaceWeatherEvent, "key", externalID)
	}
	return &ev, nil
}

// GetDailyImagery looks up an imagery entry by YYYY-MM-DD date.
func (ds *DataStore) GetDailyImagery(ctx context.Context, date string) (*DailyImageryEntry, error) {
	var entry DailyImageryEntry
	err := ds.DB.WithContext(ctx).Where("date = ?", date).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(entityDailyImagery, date)
	}
	if err != nil {
		return nil, dbError(err, "get", "entity", entityDailyImagery, "key", date)
	}
	return &entry, nil
}

// LatestDailyImagery returns the newest entry dated on or before the
// YYYY-MM-DD date onOrBefore.
func (ds *DataStore) LatestDailyImagery(ctx context.Context, onOrBefore string) (*DailyImageryEntry, error) {
	var entry DailyImageryEntry
	err := ds.DB.WithContext(ctx).
		Where("date <= ?", onOrBefore).
		Order("date DESC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(entityDailyImagery, onOrBefore)
	}
	if err != nil {
		return nil, dbError(err, "latest", "entity", entityDailyImagery, "key", onOrBefore)
	}
	return &entry, nil
}

// ListRecentDailyImagery returns up to limit entries, newest first.
func (ds *DataStore) ListRecentDailyImagery(ctx context.Context, limit int) ([]DailyImageryEntry, error) {
	if limit <= 0 {
		return nil, validationError("limit must be positive", "limit")
	}
	var entries []DailyImageryEntry
	err := ds.DB.WithContext(ctx).
		Order("date DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, dbError(err, "list_recent", "entity", entityDailyImagery, "limit", limit)
	}
	return entries, nil
}

// CountSpaceWeatherEvents returns the number of stored events.
func (ds *DataStore) CountSpaceWeatherEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := ds.DB.WithContext(ctx).Model(&SpaceWeatherEvent{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count", "entity", entitySpaceWeatherEvent)
	}
	return n, nil
}

// CountDailyImagery returns the number of stored imagery entries.
func (ds *DataStore) CountDailyImagery(ctx context.Context) (int64, error) {
	var n int64
	if err := ds.DB.WithContext(ctx).Model(&DailyImageryEntry{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count", "entity", entityDailyImagery)
	}
	return n, nil
}
