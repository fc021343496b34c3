// Package results turns fetched location data into the CSV artifact attached to job emails.
package results

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
)

// column maps a CSV header to the JMESPath expression that yields its value.
type column struct {
	header string
	expr   string
}

// Row columns in output order. Location columns are evaluated against the
// response, observation columns against each element of outputsExpr.
var (
	locationColumns = []column{
		{"user_latitude", "user_latitude"},
		{"user_longitude", "user_longitude"},
		{"locationName", "metaInfo.locationName"},
		{"locationLat", "metaInfo.locationLat"},
		{"locationLng", "metaInfo.locationLng"},
		{"status", "metaInfo.status"},
		{"requestTimestamp", "metaInfo.requestTimestamp"},
		{"queryDate", "metaInfo.queryDate"},
	}
	observationColumns = []column{
		{"imageDate", "imageDate"},
		{"satelliteImageType", "satelliteImageType"},
		{"satelliteImageFrequency", "satelliteImageFrequency"},
		{"cellConcentration", "cellConcentration"},
		{"maxCellConcentration", "maxCellConcentration"},
		{"latitude", "latitude"},
		{"longitude", "longitude"},
		{"validCellsCount", "validCellsCount"},
	}
)

const (
	outputsExpr = "outputs"
	// ResultSuffix is appended to the input stem to name artifacts.
	ResultSuffix = "_results.csv"
)

// Header returns the CSV header row.
func Header() []string {
	out := make([]string, 0, len(locationColumns)+len(observationColumns))
	for _, c := range locationColumns {
		out = append(out, c.header)
	}
	for _, c := range observationColumns {
		out = append(out, c.header)
	}
	return out
}

// CSVAggregatorOptions configures a CSVAggregator.
type CSVAggregatorOptions struct {
	// Dir is the root artifact directory; files land in Dir/<user id>/.
	Dir    string
	Logger *slog.Logger
	Now    func() time.Time
}

// CSVAggregator writes result CSVs under a per-user directory.
type CSVAggregator struct {
	dir     string
	logger  *slog.Logger
	now     func() time.Time
	loc     []jmespath.JMESPath
	obs     []jmespath.JMESPath
	outputs jmespath.JMESPath
}

var _ core.ResultAggregator = (*CSVAggregator)(nil)

// NewCSVAggregator compiles the column expressions and returns an aggregator.
func NewCSVAggregator(opts CSVAggregatorOptions) (*CSVAggregator, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	a := &CSVAggregator{dir: filepath.Clean(dir), logger: logger.With("component", "csv_aggregator"), now: now}
	var err error
	if a.loc, err = compileColumns(locationColumns); err != nil {
		return nil, err
	}
	if a.obs, err = compileColumns(observationColumns); err != nil {
		return nil, err
	}
	if a.outputs, err = jmespath.Compile(outputsExpr); err != nil {
		return nil, fmt.Errorf("compile %q: %w", outputsExpr, err)
	}
	return a, nil
}

func compileColumns(cols []column) ([]jmespath.JMESPath, error) {
	out := make([]jmespath.JMESPath, len(cols))
	for i, c := range cols {
		q, err := jmespath.Compile(c.expr)
		if err != nil {
			return nil, fmt.Errorf("compile column %s: %w", c.header, err)
		}
		out[i] = q
	}
	return out, nil
}

// Dir returns the root artifact directory.
func (a *CSVAggregator) Dir() string { return a.dir }

// Path returns the artifact path for the user's input file.
func (a *CSVAggregator) Path(userID int64, inputFilename string) (string, error) {
	name, err := model.OutputFilename(inputFilename)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.dir, strconv.FormatInt(userID, 10), name), nil
}

// Rows builds the header and one row per observation of each response, in input order.
// A response without observations contributes a single row of location columns.
func (a *CSVAggregator) Rows(responses []model.LocationResponse) ([][]string, error) {
	rows := make([][]string, 0, len(responses)+1)
	rows = append(rows, Header())
	for i, resp := range responses {
		data := map[string]any(resp)
		meta, err := evaluate(a.loc, data)
		if err != nil {
			return nil, fmt.Errorf("location %d: %w", i, err)
		}

		raw, err := a.outputs.Search(data)
		if err != nil {
			return nil, fmt.Errorf("location %d outputs: %w", i, err)
		}
		observations, _ := raw.([]any)
		if len(observations) == 0 {
			rows = append(rows, meta)
			continue
		}
		for j, obs := range observations {
			vals, err := evaluate(a.obs, obs)
			if err != nil {
				return nil, fmt.Errorf("location %d observation %d: %w", i, j, err)
			}
			row := make([]string, 0, len(meta)+len(vals))
			row = append(row, meta...)
			row = append(row, vals...)
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func evaluate(queries []jmespath.JMESPath, data any) ([]string, error) {
	out := make([]string, len(queries))
	for i, q := range queries {
		v, err := q.Search(data)
		if err != nil {
			return nil, err
		}
		out[i] = formatValue(v)
	}
	return out, nil
}

// formatValue renders a decoded JSON value as a CSV cell. Missing values are empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// CreateCSV writes the artifact for the request and returns it with its rows.
// The file is written to a temporary name and renamed into place.
func (a *CSVAggregator) CreateCSV(ctx context.Context, req core.CreateCSVRequest) (*model.Artifact, error) {
	path, err := a.Path(req.UserID, req.InputFilename)
	if err != nil {
		return nil, err
	}
	rows, err := a.Rows(req.Responses)
	if err != nil {
		return nil, fmt.Errorf("build rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeAtomic(path, rows); err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "result csv written",
		"user_id", req.UserID, "file", filepath.Base(path), "rows", len(rows)-1)
	return &model.Artifact{Filename: filepath.Base(path), Path: path, Rows: rows}, nil
}

func writeAtomic(path string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync csv: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename csv: %w", err)
	}
	return nil
}

// RemoveCSV deletes the artifact for the user's input file. A missing file is
// logged and reported as (false, nil).
func (a *CSVAggregator) RemoveCSV(ctx context.Context, userID int64, inputFilename string) (bool, error) {
	path, err := a.Path(userID, inputFilename)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.WarnContext(ctx, "result csv already removed", "user_id", userID, "file", filepath.Base(path))
			return false, nil
		}
		return false, fmt.Errorf("remove csv: %w", err)
	}
	return true, nil
}

// Sweep removes result files last modified before now-maxAge, including
// temporary files left by interrupted writes. Returns the number removed.
func (a *CSVAggregator) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := a.now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isArtifact(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep artifacts: %w", err)
	}
	return removed, nil
}

func isArtifact(name string) bool {
	if strings.HasSuffix(name, ResultSuffix) {
		return true
	}
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp") && strings.Contains(name, ResultSuffix)
}
