package datastore

import (
	"time"

	"gorm.io/datatypes"
)

// EventType classifies space weather events. The flare type is seeded at
// startup and imported events reference it by ID.
type EventType struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Description string `gorm:"size:100" json:"description"`
}

// SpaceWeatherEvent is one DONKI event, keyed by the feed-assigned ExternalID.
type SpaceWeatherEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	EventTypeID     uint           `gorm:"index;not null" json:"eventTypeId"`
	ExternalID      string         `gorm:"size:128;not null;uniqueIndex" json:"externalId"`
	Name            string         `gorm:"size:200" json:"name"`
	Description     string         `gorm:"size:1000" json:"description"`
	StartAt         *time.Time     `json:"startAt"`
	OccurredAt      *time.Time     `gorm:"index" json:"occurredAt"`
	EndAt           *time.Time     `json:"endAt"`
	SourceLocation  *string        `gorm:"size:32" json:"sourceLocation,omitempty"`
	ActiveRegionNum *int           `json:"activeRegionNum,omitempty"`
	Link            *string        `gorm:"size:500" json:"link,omitempty"`
	Raw             datatypes.JSON `json:"-"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// DailyImageryEntry is one APOD day, keyed by Date (YYYY-MM-DD).
type DailyImageryEntry struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Date           string         `gorm:"size:10;not null;uniqueIndex" json:"date"`
	Title          string         `gorm:"size:300" json:"title"`
	Explanation    string         `gorm:"type:text" json:"explanation"`
	MediaType      string         `gorm:"size:16" json:"mediaType"`
	URL            string         `gorm:"size:1000" json:"url"`
	HDURL          *string        `gorm:"column:hd_url;size:1000" json:"hdUrl"`
	ThumbURL       *string        `gorm:"size:1000" json:"thumbUrl"`
	Copyright      *string        `gorm:"size:300" json:"copyright"`
	ServiceVersion *string        `gorm:"size:16" json:"serviceVersion,omitempty"`
	LocalPath      *string        `gorm:"size:500" json:"localPath"`
	Raw            datatypes.JSON `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Columns overwritten when an import hits an existing row. The natural key
// and created_at are never in these lists; local_path is added only when the
// incoming entry carries one.
var (
	spaceWeatherEventMutable = []string{
		"event_type_id", "name", "description", "start_at", "occurred_at", "end_at",
		"source_location", "active_region_num", "link", "raw", "updated_at",
	}
	dailyImageryMutable = []string{
		"title", "explanation", "media_type", "url", "hd_url", "thumb_url",
		"copyright", "service_version", "raw", "updated_at",
	}
)
