package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/errors"
)

const (
	defaultRecentLimit = 30
	maxRecentLimit     = 100
)

// Reader serves stored feed records.
type Reader interface {
	GetDailyImagery(ctx context.Context, date string) (*datastore.DailyImageryEntry, error)
	LatestDailyImagery(ctx context.Context, onOrBefore string) (*datastore.DailyImageryEntry, error)
	ListRecentDailyImagery(ctx context.Context, limit int) ([]datastore.DailyImageryEntry, error)
	GetSpaceWeatherEvent(ctx context.Context, externalID string) (*datastore.SpaceWeatherEvent, error)
}

func (c *Controller) initReadRoutes() {
	apod := c.Group.Group("/apod")
	apod.GET("/today", c.GetApodToday)
	apod.GET("/recent", c.GetApodRecent)
	apod.GET("/:date", c.GetApodByDate)

	c.Group.GET("/donki/flares/:id", c.GetFlare)
}

// GetApodToday handles GET /api/apod/today: the newest entry dated on or
// before today (UTC).
func (c *Controller) GetApodToday(ctx echo.Context) error {
	today := daterange.FormatDay(daterange.Day(c.now().UTC()))
	entry, err := c.reader.LatestDailyImagery(ctx.Request().Context(), today)
	if err != nil {
		return c.handleReadError(ctx, err, "No imagery stored yet")
	}
	return ctx.JSON(http.StatusOK, entry)
}

// GetApodByDate handles GET /api/apod/:date with date as YYYY-MM-DD.
func (c *Controller) GetApodByDate(ctx echo.Context) error {
	raw := ctx.Param("date")
	day, err := daterange.ParseDay(raw)
	if err != nil {
		return c.HandleError(ctx, queryError("date", fmt.Errorf("expected %s, got %q", daterange.DayLayout, raw)),
			"Invalid date", http.StatusBadRequest)
	}
	entry, err := c.reader.GetDailyImagery(ctx.Request().Context(), daterange.FormatDay(day))
	if err != nil {
		return c.handleReadError(ctx, err, "No imagery stored for "+daterange.FormatDay(day))
	}
	return ctx.JSON(http.StatusOK, entry)
}

// GetApodRecent handles GET /api/apod/recent?limit=, newest first. The limit
// defaults to 30 and is clamped to 1..100.
func (c *Controller) GetApodRecent(ctx echo.Context) error {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.HandleError(ctx, queryError("limit", fmt.Errorf("expected an integer, got %q", raw)),
				"Invalid limit", http.StatusBadRequest)
		}
		limit = min(max(n, 1), maxRecentLimit)
	}

	entries, err := c.reader.ListRecentDailyImagery(ctx.Request().Context(), limit)
	if err != nil {
		return c.handleReadError(ctx, err, "")
	}
	if entries == nil {
		entries = []datastore.DailyImageryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// GetFlare handles GET /api/donki/flares/:id by DONKI flrID.
func (c *Controller) GetFlare(ctx echo.Context) error {
	id := ctx.Param("id")
	event, err := c.reader.GetSpaceWeatherEvent(ctx.Request().Context(), id)
	if err != nil {
		return c.handleReadError(ctx, err, "No flare stored with id "+id)
	}
	return ctx.JSON(http.StatusOK, event)
}

func (c *Controller) handleReadError(ctx echo.Context, err error, notFound string) error {
	if errors.Is(err, datastore.ErrNotFound) {
		return c.HandleError(ctx, err, notFound, http.StatusNotFound)
	}
	return c.HandleError(ctx, err, "Failed to read stored records", http.StatusInternalServerError)
}
