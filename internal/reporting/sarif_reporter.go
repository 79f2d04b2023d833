package reporting

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "Lancet"
	ToolInfoURI  = "https://github.com/xkilldash9x/lancet"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// severityLevel maps issue severities to SARIF levels. SARIF has no
// "critical"; critical and high both map to error.
func severityLevel(s schemas.Severity) sarif.Level {
	switch s {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// SARIFReporter converts a scan result into a single-run SARIF 2.1.0 log.
type SARIFReporter struct {
	writer io.Writer
	logger *zap.Logger
}

// NewSARIFReporter builds a SARIFReporter targeting w.
func NewSARIFReporter(w io.Writer, logger *zap.Logger) *SARIFReporter {
	return &SARIFReporter{
		writer: w,
		logger: logger.Named("sarif_reporter"),
	}
}

// Write serializes the result as SARIF. Rules are deduplicated per
// (detector, category) pair; each issue becomes one result referencing its
// rule.
func (r *SARIFReporter) Write(result *schemas.ScanResult) error {
	rules := make(map[string]*sarif.ReportingDescriptor)
	var results []*sarif.Result

	for _, report := range result.Reports {
		for _, issue := range report.Issues {
			ruleID := fmt.Sprintf("lancet.%s.%s", issue.Detector, issue.Category)
			if _, ok := rules[ruleID]; !ok {
				message := issue.Message
				remediation := issue.Remediation
				rules[ruleID] = &sarif.ReportingDescriptor{
					ID:               ruleID,
					ShortDescription: &sarif.MultiformatMessageString{Text: &message},
					Help:             &sarif.MultiformatMessageString{Text: &remediation},
				}
			}

			text := issue.Message
			uri := issue.Location.File
			results = append(results, &sarif.Result{
				RuleID:  ruleID,
				Message: &sarif.Message{Text: &text},
				Level:   severityLevel(issue.Severity),
				Locations: []*sarif.Location{{
					PhysicalLocation: &sarif.PhysicalLocation{
						ArtifactLocation: &sarif.ArtifactLocation{URI: &uri},
						Region: &sarif.Region{
							StartLine:   issue.Location.StartLine,
							StartColumn: issue.Location.StartColumn,
							EndLine:     issue.Location.EndLine,
							EndColumn:   issue.Location.EndColumn,
						},
					},
				}},
			})
		}
	}

	ruleIDs := make([]string, 0, len(rules))
	for id := range rules {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)
	descriptors := make([]*sarif.ReportingDescriptor, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		descriptors = append(descriptors, rules[id])
	}

	infoURI := ToolInfoURI
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{{
			Tool: &sarif.Tool{Driver: &sarif.ToolComponent{
				Name:           ToolName,
				InformationURI: &infoURI,
				Rules:          descriptors,
			}},
			Results: results,
		}},
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("failed to encode SARIF log: %w", err)
	}
	r.logger.Debug("Wrote SARIF report", zap.Int("results", len(results)))
	return nil
}
