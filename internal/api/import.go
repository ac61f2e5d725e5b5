package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/logger"
)

// ImportFlares handles POST /api/import/donki/flares?start=&end=
func (c *Controller) ImportFlares(ctx echo.Context) error {
	start, err := optionalDay(ctx, "start")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid start date", http.StatusBadRequest)
	}
	end, err := optionalDay(ctx, "end")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid end date", http.StatusBadRequest)
	}

	res, err := c.importer.ImportFlares(ctx.Request().Context(), start, end)
	if err != nil {
		return c.handleImportError(ctx, err)
	}
	c.log.Info("flare import served",
		logger.String("run_id", res.RunID),
		logger.Int("imported", res.Imported()))
	return ctx.JSON(http.StatusOK, res)
}

// ImportApod handles POST /api/import/nasa/apod?date=
func (c *Controller) ImportApod(ctx echo.Context) error {
	date, err := optionalDay(ctx, "date")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date", http.StatusBadRequest)
	}

	res, err := c.importer.ImportSingle(ctx.Request().Context(), date)
	if err != nil {
		return c.handleImportError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, res)
}

// ImportApodRange handles POST /api/import/nasa/apod/range?start=&end=
func (c *Controller) ImportApodRange(ctx echo.Context) error {
	start, err := requiredDay(ctx, "start")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid start date", http.StatusBadRequest)
	}
	end, err := requiredDay(ctx, "end")
	if err != nil {
		return c.HandleError(ctx, err, "Invalid end date", http.StatusBadRequest)
	}

	res, err := c.importer.ImportRange(ctx.Request().Context(), start, end)
	if err != nil {
		return c.handleImportError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, res)
}

// optionalDay parses a YYYY-MM-DD query parameter; absent yields nil.
func optionalDay(ctx echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	day, err := daterange.ParseDay(raw)
	if err != nil {
		return nil, queryError(name, fmt.Errorf("expected %s, got %q", daterange.DayLayout, raw))
	}
	return &day, nil
}

func requiredDay(ctx echo.Context, name string) (time.Time, error) {
	day, err := optionalDay(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	if day == nil {
		return time.Time{}, queryError(name, fmt.Errorf("query parameter %s is required", name))
	}
	return *day, nil
}

func queryError(name string, err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryValidation).
		Context("parameter", name).
		Build()
}
