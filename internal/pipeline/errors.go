package pipeline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ConfigurationError is returned before any role runs when the pipeline
// cannot be set up as requested.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

var passwordParam = regexp.MustCompile(`(?i)(password=)\S+`)

// redact hides credentials in a destination before it lands in stats or logs.
func redact(destination string) string {
	if strings.Contains(destination, "://") {
		if u, err := url.Parse(destination); err == nil {
			return u.Redacted()
		}
	}
	return passwordParam.ReplaceAllString(destination, "${1}xxxxx")
}
