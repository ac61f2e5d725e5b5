package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/errors"
)

// ErrRecordSkipped is returned by the normalizers when a record lacks a
// required field. Skips are counted, never reported one by one.
var ErrRecordSkipped = errors.NewStd("record skipped")

// DONKI reports minute precision; other layouts are accepted for safety.
var timestampLayouts = []string{
	"2006-01-02T15:04Z",
	time.RFC3339,
	"2006-01-02T15:04:05Z",
}

const (
	MediaImage = "image"
	MediaVideo = "video"
)

type rawFlare struct {
	FlrID           optString `json:"flrID"`
	BeginTime       optString `json:"beginTime"`
	PeakTime        optString `json:"peakTime"`
	EndTime         optString `json:"endTime"`
	ClassType       optString `json:"classType"`
	SourceLocation  optString `json:"sourceLocation"`
	ActiveRegionNum optString `json:"activeRegionNum"`
	Link            optString `json:"link"`
}

type rawImagery struct {
	Date           optString `json:"date"`
	Title          optString `json:"title"`
	Explanation    optString `json:"explanation"`
	MediaType      optString `json:"media_type"`
	URL            optString `json:"url"`
	HDURL          optString `json:"hdurl"`
	ThumbnailURL   optString `json:"thumbnail_url"`
	Copyright      optString `json:"copyright"`
	ServiceVersion optString `json:"service_version"`
}

// ImageryRecord is a normalized imagery entry plus the URL its local asset
// should be downloaded from. AssetURL is empty for non-image media.
type ImageryRecord struct {
	Entry    *datastore.DailyImageryEntry
	Day      time.Time
	AssetURL string
}

func skip(reason string) error {
	return errors.New(ErrRecordSkipped).
		Component("ingest").
		Category(errors.CategoryFileParsing).
		Context("reason", reason).
		Build()
}

// NormalizeFlare maps one DONKI FLR record. flrID and peakTime are
// required; a malformed optional field becomes nil.
func NormalizeFlare(raw []byte, eventTypeID uint) (*datastore.SpaceWeatherEvent, error) {
	if raw == nil {
		return nil, skip("not an object")
	}
	var f rawFlare
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, skip("not an object")
	}
	if !f.FlrID.Present() {
		return nil, skip("missing flrID")
	}
	occurred := parseTimestamp(f.PeakTime)
	if occurred == nil {
		return nil, skip("missing peakTime")
	}

	class := f.ClassType.String()
	name := "Solar Flare"
	if class != "" {
		name = class + " Flare"
	}

	return &datastore.SpaceWeatherEvent{
		EventTypeID:     eventTypeID,
		ExternalID:      f.FlrID.String(),
		Name:            name,
		Description:     class,
		StartAt:         parseTimestamp(f.BeginTime),
		OccurredAt:      occurred,
		EndAt:           parseTimestamp(f.EndTime),
		SourceLocation:  f.SourceLocation.Ptr(),
		ActiveRegionNum: parseInt(f.ActiveRegionNum),
		Link:            f.Link.Ptr(),
		Raw:             datatypes.JSON(raw),
	}, nil
}

// NormalizeImagery maps one APOD record. date and url are required.
// thumbUrl is the feed thumbnail for video media and url otherwise; only
// image media gets an asset URL, preferring hdurl.
func NormalizeImagery(raw []byte) (*ImageryRecord, error) {
	if raw == nil {
		return nil, skip("not an object")
	}
	var r rawImagery
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, skip("not an object")
	}
	if !r.Date.Present() {
		return nil, skip("missing date")
	}
	day, err := daterange.ParseDay(r.Date.String())
	if err != nil {
		return nil, skip("malformed date")
	}
	if !r.URL.Present() {
		return nil, skip("missing url")
	}

	mediaType := strings.ToLower(r.MediaType.String())
	if mediaType == "" {
		mediaType = MediaImage
	}

	url := r.URL.String()
	thumb := &url
	if mediaType == MediaVideo {
		thumb = r.ThumbnailURL.Ptr()
	}

	entry := &datastore.DailyImageryEntry{
		Date:           daterange.FormatDay(day),
		Title:          r.Title.String(),
		Explanation:    r.Explanation.String(),
		MediaType:      mediaType,
		URL:            url,
		HDURL:          r.HDURL.Ptr(),
		ThumbURL:       thumb,
		Copyright:      r.Copyright.Ptr(),
		ServiceVersion: r.ServiceVersion.Ptr(),
		Raw:            datatypes.JSON(raw),
	}

	rec := &ImageryRecord{Entry: entry, Day: day}
	if mediaType == MediaImage {
		rec.AssetURL = url
		if entry.HDURL != nil {
			rec.AssetURL = *entry.HDURL
		}
	}
	return rec, nil
}

func parseTimestamp(o optString) *time.Time {
	if !o.Present() {
		return nil
	}
	s := o.String()
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseInt(o optString) *int {
	if !o.Present() {
		return nil
	}
	n, err := strconv.Atoi(o.String())
	if err != nil {
		return nil
	}
	return &n
}
