// Package cyanapi fetches per-location cyanobacteria data from the external water-quality API.
package cyanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
	obserrors "github.com/target/cyano-batch/internal/observability/errors"
)

const locationPath = "/cyan/cyano/location/data/{lat}/{lon}/all"

// ErrUpstreamStatus is returned when the API answers with a non-2xx status.
var ErrUpstreamStatus = errors.New("upstream returned error status")

func init() {
	obserrors.Register(ErrUpstreamStatus, "upstream_status")
}

// StatusError carries the upstream status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUpstreamStatus, e.Code, e.Body)
}

// Unwrap lets callers match with errors.Is(err, ErrUpstreamStatus).
func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL          string // Required
	DataType         string
	DefaultFrequency string
	UserAgent        string
	// Timeout bounds a single request.
	Timeout    time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client calls the location data endpoint with resty.
type Client struct {
	http             *resty.Client
	dataType         string
	defaultFrequency string
	timeout          time.Duration
	logger           *slog.Logger
}

var _ core.LocationFetcher = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("cyan api base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dataType := opts.DataType
	if dataType == "" {
		dataType = "olci"
	}
	freq := opts.DefaultFrequency
	if freq == "" {
		freq = "daily"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		http:             rc,
		dataType:         dataType,
		defaultFrequency: freq,
		timeout:          timeout,
		logger:           logger.With("component", "cyan_api"),
	}, nil
}

// FetchLocation requests data for one location and returns the decoded JSON
// object with the caller's coordinates added as user_latitude and user_longitude.
func (c *Client) FetchLocation(ctx context.Context, loc model.LocationRequest) (model.LocationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"lat": formatCoord(loc.Latitude),
			"lon": formatCoord(loc.Longitude),
		}).
		SetQueryParams(map[string]string{
			"type":      c.dataType,
			"frequency": loc.Type.Frequency(c.defaultFrequency),
		}).
		Get(locationPath)
	if err != nil {
		return nil, fmt.Errorf("fetch location %s,%s: %w",
			formatCoord(loc.Latitude), formatCoord(loc.Longitude), err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: abbreviate(resp.String(), 256)}
	}

	out := model.LocationResponse{}
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode location response: %w", err)
		}
	}
	out["user_latitude"] = loc.Latitude
	out["user_longitude"] = loc.Longitude

	c.logger.DebugContext(ctx, "fetched location",
		"latitude", loc.Latitude,
		"longitude", loc.Longitude,
		"status", resp.StatusCode(),
		"duration", resp.Time())
	return out, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
