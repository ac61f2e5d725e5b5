package nasa

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/spaceportal/spaceportal/internal/daterange"
)

// FetchFlares requests DONKI solar flares for the window.
func (c *Client) FetchFlares(ctx context.Context, w daterange.Window) (*Response, error) {
	params := url.Values{}
	params.Set("startDate", daterange.FormatDay(w.Start))
	params.Set("endDate", daterange.FormatDay(w.End))
	return c.Fetch(ctx, FeedDONKI, PathFlares, params)
}

// FetchApodDay requests the APOD entry of a single day.
func (c *Client) FetchApodDay(ctx context.Context, day time.Time, thumbs bool) (*Response, error) {
	params := url.Values{}
	params.Set("date", daterange.FormatDay(day))
	params.Set("thumbs", strconv.FormatBool(thumbs))
	return c.Fetch(ctx, FeedAPOD, PathApod, params)
}

// FetchApodRange requests APOD entries for every day in the window.
func (c *Client) FetchApodRange(ctx context.Context, w daterange.Window, thumbs bool) (*Response, error) {
	params := url.Values{}
	params.Set("start_date", daterange.FormatDay(w.Start))
	params.Set("end_date", daterange.FormatDay(w.End))
	params.Set("thumbs", strconv.FormatBool(thumbs))
	return c.Fetch(ctx, FeedAPOD, PathApod, params)
}
