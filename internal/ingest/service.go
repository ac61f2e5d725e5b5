// Package ingest imports NASA feed records into the datastore.
//
// One import is a sequential unit of work: resolve the date window, fetch
// the payload once, cap it, then normalize and upsert each record in feed
// order. A record that cannot be normalized or stored is counted and the
// batch continues; only the range check, the credential check and the fetch
// can fail the whole import.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spaceportal/spaceportal/internal/assetcache"
	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/nasa"
	"github.com/spaceportal/spaceportal/internal/observability/metrics"
)

// DefaultMaxRecords bounds the records processed from one upstream response.
const DefaultMaxRecords = 1000

const (
	FeedFlares  = "donki-flr"
	FeedImagery = "apod"
)

// Config holds import policy.
type Config struct {
	MaxRecords        int
	FlareLookbackDays int
	FlareEventTypeID  uint
	Thumbs            bool
	DownloadImages    bool
}

// FeedClient fetches raw feed payloads.
type FeedClient interface {
	HasCredential() bool
	FetchFlares(ctx context.Context, w daterange.Window) (*nasa.Response, error)
	FetchApodDay(ctx context.Context, day time.Time, thumbs bool) (*nasa.Response, error)
	FetchApodRange(ctx context.Context, w daterange.Window, thumbs bool) (*nasa.Response, error)
}

// Store persists normalized records by natural key.
type Store interface {
	UpsertSpaceWeatherEvent(ctx context.Context, event *datastore.SpaceWeatherEvent) (datastore.Outcome, error)
	UpsertDailyImagery(ctx context.Context, entry *datastore.DailyImageryEntry) (datastore.Outcome, error)
}

// AssetCache stores media locally.
type AssetCache interface {
	CacheAsset(ctx context.Context, sourceURL string, date time.Time) assetcache.Result
}

// Recorder receives import metrics.
type Recorder interface {
	RecordImport(feed, status string, capped bool)
	RecordRecords(feed, outcome string, n int)
}

// Result summarizes one import run.
type Result struct {
	RunID          string                         `json:"runId"`
	Feed           string                         `json:"feed"`
	Range          daterange.Window               `json:"range"`
	TotalAvailable int                            `json:"totalAvailable"`
	Processed      int                            `json:"processed"`
	Inserted       int                            `json:"inserted"`
	Updated        int                            `json:"updated"`
	Skipped        int                            `json:"skipped"`
	Failed         int                            `json:"failed"`
	Capped         bool                           `json:"capped"`
	MaxRecords     int                            `json:"maxRecords"`
	AssetsCached   int                            `json:"assetsCached"`
	AssetFailures  int                            `json:"assetFailures"`
	Note           string                         `json:"note"`
	Entries        []*datastore.DailyImageryEntry `json:"entries,omitempty"`
}

// Imported is the number of records inserted or updated.
func (r *Result) Imported() int {
	return r.Inserted + r.Updated
}

// Service runs imports. Safe for concurrent use; concurrent imports of
// overlapping windows converge on the same rows but are not serialized.
type Service struct {
	cfg      Config
	feeds    FeedClient
	store    Store
	assets   AssetCache
	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAssetCache enables local media caching for image entries.
func WithAssetCache(a AssetCache) Option {
	return func(s *Service) { s.assets = a }
}

// WithRecorder records import metrics through r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock replaces time.Now for default date resolution.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an import service.
func NewService(cfg Config, feeds FeedClient, store Store, opts ...Option) *Service {
	if cfg.FlareLookbackDays <= 0 {
		cfg.FlareLookbackDays = 365
	}
	if cfg.FlareEventTypeID == 0 {
		cfg.FlareEventTypeID = 5
	}
	s := &Service{cfg: cfg, feeds: feeds, store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDiscardLogger()
	}
	return s
}

// ImportFlares imports DONKI solar flares between start and end. A nil end
// means today and a nil start means the configured lookback before end.
func (s *Service) ImportFlares(ctx context.Context, start, end *time.Time) (*Result, error) {
	w, err := daterange.Resolve(start, end, s.cfg.FlareLookbackDays, s.now().UTC())
	if err != nil {
		return nil, err
	}
	res := s.newResult(FeedFlares, w)
	log := s.log.With(logger.String("run_id", res.RunID), logger.String("feed", res.Feed))

	if err := s.requireCredential(res.Feed); err != nil {
		return nil, err
	}

	resp, err := s.feeds.FetchFlares(ctx, w)
	if err != nil {
		return nil, s.fail(res, err)
	}
	records, err := splitArray(resp.Body)
	if err != nil {
		return nil, s.fail(res, s.malformed(resp, nasa.FeedDONKI, err))
	}

	records = s.applyCap(res, records)
	log.Info("importing flares",
		logger.String("range", w.String()),
		logger.Int("days", w.Days()),
		logger.Int("available", res.TotalAvailable),
		logger.Bool("capped", res.Capped))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, s.cancelled(res, log, err)
		}
		res.Processed++

		event, err := NormalizeFlare(rec.Raw, s.cfg.FlareEventTypeID)
		if err != nil {
			res.Skipped++
			continue
		}
		s.tally(res, log, event.ExternalID, func() (datastore.Outcome, error) {
			return s.store.UpsertSpaceWeatherEvent(ctx, event)
		})
	}

	return s.finish(res, log), nil
}

// ImportSingle imports the imagery entry of one day, today when date is nil.
func (s *Service) ImportSingle(ctx context.Context, date *time.Time) (*Result, error) {
	day := daterange.ResolveDay(date, s.now().UTC())
	w := daterange.Window{Start: day, End: day}
	res := s.newResult(FeedImagery, w)

	if err := s.requireCredential(res.Feed); err != nil {
		return nil, err
	}

	resp, err := s.feeds.FetchApodDay(ctx, day, s.cfg.Thumbs)
	if err != nil {
		return nil, s.fail(res, err)
	}
	return s.importImagery(ctx, res, resp)
}

// ImportRange imports imagery entries for every day from start to end
// inclusive.
func (s *Service) ImportRange(ctx context.Context, start, end time.Time) (*Result, error) {
	w, err := daterange.Resolve(&start, &end, 0, s.now().UTC())
	if err != nil {
		return nil, err
	}
	res := s.newResult(FeedImagery, w)

	if err := s.requireCredential(res.Feed); err != nil {
		return nil, err
	}

	resp, err := s.feeds.FetchApodRange(ctx, w, s.cfg.Thumbs)
	if err != nil {
		return nil, s.fail(res, err)
	}
	return s.importImagery(ctx, res, resp)
}

func (s *Service) importImagery(ctx context.Context, res *Result, resp *nasa.Response) (*Result, error) {
	log := s.log.With(logger.String("run_id", res.RunID), logger.String("feed", res.Feed))

	records, err := splitObjectOrArray(resp.Body)
	if err != nil {
		return nil, s.fail(res, s.malformed(resp, nasa.FeedAPOD, err))
	}

	records = s.applyCap(res, records)
	log.Info("importing imagery",
		logger.String("range", res.Range.String()),
		logger.Int("days", res.Range.Days()),
		logger.Int("available", res.TotalAvailable),
		logger.Bool("capped", res.Capped))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, s.cancelled(res, log, err)
		}
		res.Processed++

		item, err := NormalizeImagery(rec.Raw)
		if err != nil {
			res.Skipped++
			continue
		}

		if item.AssetURL != "" && s.cfg.DownloadImages && s.assets != nil {
			asset := s.assets.CacheAsset(ctx, item.AssetURL, item.Day)
			if asset.Err != nil {
				res.AssetFailures++
				log.Warn("asset download failed, keeping remote url",
					logger.String("date", item.Entry.Date),
					logger.String("url", item.AssetURL),
					logger.Error(asset.Err))
			} else {
				res.AssetsCached++
				item.Entry.LocalPath = &asset.Path
			}
		}

		if s.tally(res, log, item.Entry.Date, func() (datastore.Outcome, error) {
			return s.store.UpsertDailyImagery(ctx, item.Entry)
		}) {
			res.Entries = append(res.Entries, item.Entry)
		}
	}

	return s.finish(res, log), nil
}

// tally runs one upsert and counts its outcome. A storage failure is
// counted and logged; it never stops the batch.
func (s *Service) tally(res *Result, log logger.Logger, key string, upsert func() (datastore.Outcome, error)) bool {
	outcome, err := upsert()
	if err != nil {
		res.Failed++
		log.Error("failed to store record", logger.String("key", key), logger.Error(err))
		return false
	}
	switch outcome {
	case datastore.OutcomeInserted:
		res.Inserted++
	case datastore.OutcomeUpdated:
		res.Updated++
	}
	return true
}

func (s *Service) newResult(feed string, w daterange.Window) *Result {
	return &Result{
		RunID:      uuid.NewString(),
		Feed:       feed,
		Range:      w,
		MaxRecords: s.maxRecords(),
	}
}

func (s *Service) maxRecords() int {
	if s.cfg.MaxRecords <= 0 {
		return DefaultMaxRecords
	}
	return s.cfg.MaxRecords
}

func (s *Service) applyCap(res *Result, records []record) []record {
	res.TotalAvailable = len(records)
	records, res.Capped = Cap(records, res.MaxRecords)
	return records
}

func (s *Service) requireCredential(feed string) error {
	if s.feeds.HasCredential() {
		return nil
	}
	return errors.New(nasa.ErrMissingCredential).
		Component("ingest").
		Category(errors.CategoryConfiguration).
		Context("feed", feed).
		Build()
}

func (s *Service) malformed(resp *nasa.Response, feed nasa.Feed, cause error) error {
	return errors.New(nasa.Malformed(resp, feed, cause)).
		Component("ingest").
		Category(errors.CategoryUpstream).
		Build()
}

func (s *Service) fail(res *Result, err error) error {
	status := metrics.StatusError
	if errors.IsCategory(err, errors.CategoryCancellation) {
		status = metrics.StatusCancelled
	}
	s.record(res, status)
	s.log.Warn("import failed",
		logger.String("run_id", res.RunID),
		logger.String("feed", res.Feed),
		logger.Error(err))
	return err
}

func (s *Service) cancelled(res *Result, log logger.Logger, cause error) error {
	res.Note = fmt.Sprintf("Import cancelled after %d of %d records.", res.Processed, min(res.TotalAvailable, res.MaxRecords))
	s.record(res, metrics.StatusCancelled)
	log.Warn("import cancelled", logger.Int("processed", res.Processed))
	return errors.New(cause).
		Component("ingest").
		Category(errors.CategoryCancellation).
		Context("processed", res.Processed).
		Build()
}

func (s *Service) finish(res *Result, log logger.Logger) *Result {
	if res.Capped {
		res.Note = fmt.Sprintf("Import capped at %d records to prevent overload.", res.MaxRecords)
	} else {
		res.Note = "Import complete."
	}
	s.record(res, metrics.StatusSuccess)
	log.Info("import finished",
		logger.Int("inserted", res.Inserted),
		logger.Int("updated", res.Updated),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed),
		logger.Int("assets_cached", res.AssetsCached))
	return res
}

func (s *Service) record(res *Result, status string) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordImport(res.Feed, status, res.Capped)
	s.recorder.RecordRecords(res.Feed, metrics.OutcomeInserted, res.Inserted)
	s.recorder.RecordRecords(res.Feed, metrics.OutcomeUpdated, res.Updated)
	s.recorder.RecordRecords(res.Feed, metrics.OutcomeSkipped, res.Skipped)
	s.recorder.RecordRecords(res.Feed, metrics.OutcomeFailed, res.Failed)
}
