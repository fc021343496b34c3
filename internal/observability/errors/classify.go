// Package errors classifies errors into short names for metric tags and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/target/cyano-batch/internal/domain/model"
)

var known = []struct {
	target error
	class  string
}{
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "timeout"},
	{model.ErrBrokerUnavailable, "broker_unavailable"},
	{model.ErrInvalidFilename, "invalid_filename"},
	{model.ErrUserNotFound, "user_not_found"},
	{model.ErrBatchJobNotFound, "job_not_found"},
	{model.ErrActiveJobExists, "active_job_exists"},
}

// Register adds a sentinel with a fixed class name. Call from init only.
func Register(target error, class string) {
	known = append(known, struct {
		target error
		class  string
	}{target, class})
}

// Classify returns a normalized error type name suitable for tagging metrics and alerts.
// Registered sentinels win; otherwise the innermost concrete type is used in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range known {
		if goerrors.Is(err, k.target) {
			return k.class
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
