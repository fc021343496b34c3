package config

import (
	"strings"
	"time"
)

const (
	// DefaultLocationsLimit is the maximum number of locations accepted in one batch job.
	DefaultLocationsLimit = 10000
	defaultFetchDelay     = 100 * time.Millisecond
	defaultFetchTimeout   = 30 * time.Second
)

// BatchConfig contains batch job orchestration and pipeline configuration.
type BatchConfig struct {
	// LocationsLimit is the upper bound on locations per job; larger submissions are soft-rejected.
	LocationsLimit int `env:"LOCATIONS_LIMIT" envDefault:"10000"`

	// ArtifactDir is where transient result CSVs are written before being emailed.
	ArtifactDir string `env:"BATCH_ARTIFACT_DIR" envDefault:"user_jobs"`

	// FetchDelay is the pause between consecutive external API calls within one job.
	FetchDelay time.Duration `env:"BATCH_FETCH_DELAY" envDefault:"100ms"`

	// FetchTimeout bounds each external API call.
	FetchTimeout time.Duration `env:"BATCH_FETCH_TIMEOUT" envDefault:"30s"`

	// FetchRetries is the number of extra attempts per location after a failed fetch.
	// Zero keeps the fail-fast behaviour where one upstream error fails the job.
	FetchRetries int `env:"BATCH_FETCH_RETRIES" envDefault:"0"`

	// FetchBackoff is the base delay between fetch retries; it doubles per attempt.
	FetchBackoff time.Duration `env:"BATCH_FETCH_BACKOFF" envDefault:"500ms"`

	// CancelCheckEvery is how many locations a worker fetches between checks for a user cancel.
	CancelCheckEvery int `env:"BATCH_CANCEL_CHECK_EVERY" envDefault:"20"`

	// NotifyOnFailure sends a failure email (without attachment) when a job fails.
	NotifyOnFailure bool `env:"BATCH_NOTIFY_ON_FAILURE" envDefault:"false"`
}

// Sanitize applies guardrails to batch configuration values.
func (b *BatchConfig) Sanitize() {
	if b.LocationsLimit < 1 {
		b.LocationsLimit = DefaultLocationsLimit
	}
	b.ArtifactDir = strings.TrimSpace(b.ArtifactDir)
	if b.ArtifactDir == "" {
		b.ArtifactDir = "user_jobs"
	}
	if b.FetchDelay < 0 {
		b.FetchDelay = defaultFetchDelay
	}
	if b.FetchTimeout <= 0 {
		b.FetchTimeout = defaultFetchTimeout
	}
	if b.FetchRetries < 0 {
		b.FetchRetries = 0
	}
	if b.FetchRetries > 10 {
		b.FetchRetries = 10
	}
	if b.FetchBackoff <= 0 {
		b.FetchBackoff = 500 * time.Millisecond
	}
	if b.CancelCheckEvery < 1 {
		b.CancelCheckEvery = 20
	}
}

// CyanAPIConfig configures the external water-quality data API.
type CyanAPIConfig struct {
	// BaseURL is the API root; requests go to <BaseURL>/cyan/cyano/location/data/...
	BaseURL string `env:"BASE_URL" envDefault:"https://cyan.epa.gov"`

	// DataType is the satellite product requested for every location.
	DataType string `env:"DATA_TYPE" envDefault:"olci"`

	// DefaultFrequency is used when a location does not specify one.
	DefaultFrequency string `env:"DEFAULT_FREQUENCY" envDefault:"daily"`

	// UserAgent is sent with every request.
	UserAgent string `env:"USER_AGENT" envDefault:"cyano-batch/1.0"`
}

// Sanitize normalises API configuration values.
func (c *CyanAPIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.DataType = strings.ToLower(strings.TrimSpace(c.DataType))
	if c.DataType == "" {
		c.DataType = "olci"
	}
	c.DefaultFrequency = strings.ToLower(strings.TrimSpace(c.DefaultFrequency))
	if c.DefaultFrequency != "daily" && c.DefaultFrequency != "weekly" {
		c.DefaultFrequency = "daily"
	}
}
