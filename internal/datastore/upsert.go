package datastore

import (
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
)

const (
	entitySpaceWeatherEvent = "space_weather_event"
	entityDailyImagery      = "daily_imagery"
)

// UpsertSpaceWeatherEvent inserts the event or, when its ExternalID exists,
// overwrites the mutable columns. On return event holds the stored row.
func (ds *DataStore) UpsertSpaceWeatherEvent(ctx context.Context, event *SpaceWeatherEvent) (Outcome, error) {
	if strings.TrimSpace(event.ExternalID) == "" {
		return OutcomeNone, validationError("space weather event has no external id", "external_id")
	}

	return ds.upsert(ctx, entitySpaceWeatherEvent, event.ExternalID, func(tx *gorm.DB) (Outcome, error) {
		var existing SpaceWeatherEvent
		err := tx.Where("external_id = ?", event.ExternalID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			event.ID = 0
			return OutcomeInserted, tx.Create(event).Error
		}
		if err != nil {
			return OutcomeNone, err
		}

		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
		event.UpdatedAt = time.Now()
		if err := tx.Model(&existing).Select(spaceWeatherEventMutable).Updates(event).Error; err != nil {
			return OutcomeNone, err
		}
		return OutcomeUpdated, nil
	})
}

// UpsertDailyImagery inserts the entry or, when its Date exists, overwrites
// the mutable columns. A nil LocalPath keeps the stored path.
func (ds *DataStore) UpsertDailyImagery(ctx context.Context, entry *DailyImageryEntry) (Outcome, error) {
	if strings.TrimSpace(entry.Date) == "" {
		return OutcomeNone, validationError("imagery entry has no date", "date")
	}

	return ds.upsert(ctx, entityDailyImagery, entry.Date, func(tx *gorm.DB) (Outcome, error) {
		var existing DailyImageryEntry
		err := tx.Where("date = ?", entry.Date).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry.ID = 0
			return OutcomeInserted, tx.Create(entry).Error
		}
		if err != nil {
			return OutcomeNone, err
		}

		columns := dailyImageryMutable
		if entry.LocalPath != nil {
			columns = append(slices.Clone(columns), "local_path")
		}

		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		entry.UpdatedAt = time.Now()
		if err := tx.Model(&existing).Select(columns).Updates(entry).Error; err != nil {
			return OutcomeNone, err
		}
		if entry.LocalPath == nil {
			entry.LocalPath = existing.LocalPath
		}
		return OutcomeUpdated, nil
	})
}

// upsert runs fn in its own transaction. An insert that loses a race with a
// concurrent import hits the unique index; the row exists by then, so fn is
// run once more and resolves to an update.
func (ds *DataStore) upsert(ctx context.Context, entity, key string, fn func(tx *gorm.DB) (Outcome, error)) (Outcome, error) {
	start := time.Now()

	var outcome Outcome
	run := func() error {
		return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			outcome, err = fn(tx)
			return err
		})
	}

	err := run()
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		ds.log.Debug("natural key inserted concurrently, retrying as update",
			logger.String("entity", entity),
			logger.String("key", key))
		err = run()
	}

	elapsed := time.Since(start)
	if ds.observer != nil {
		ds.observer.RecordUpsertDuration(entity, elapsed)
	}
	if err != nil {
		return OutcomeNone, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Timing("upsert", elapsed).
			Context("entity", entity).
			Context("key", key).
			Build()
	}
	return outcome, nil
}
