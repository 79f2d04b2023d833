// Package reporting serializes scan results for external consumers, either
// as a JSON envelope or as SARIF 2.1.0 for code-scanning integrations.
package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes a scan result to its destination.
type Reporter interface {
	Write(result *schemas.ScanResult) error
}

// JSONReporter emits the scan result envelope as indented JSON.
type JSONReporter struct {
	writer io.Writer
	logger *zap.Logger
}

// NewJSONReporter builds a JSONReporter targeting w.
func NewJSONReporter(w io.Writer, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer: w,
		logger: logger.Named("json_reporter"),
	}
}

// Write serializes the result.
func (r *JSONReporter) Write(result *schemas.ScanResult) error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}
	r.logger.Debug("Wrote JSON report",
		zap.Int("reports", len(result.Reports)),
		zap.Int("issues", result.Metrics.IssueCount))
	return nil
}

// NewReporter selects a reporter by format name ("json" or "sarif").
func NewReporter(format string, w io.Writer, logger *zap.Logger) (Reporter, error) {
	switch format {
	case "", "json":
		return NewJSONReporter(w, logger), nil
	case "sarif":
		return NewSARIFReporter(w, logger), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
