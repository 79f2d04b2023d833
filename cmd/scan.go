package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/engine"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/reporting"
	"github.com/xkilldash9x/lancet/internal/store"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

// maxFileSizeBytes caps how large a single source file may be before the
// scanner skips it. Minified bundles past this size are rarely worth parsing.
const maxFileSizeBytes = 2 << 20

// skipDirs are directory names the file walk never descends into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Analyzes a file or directory tree for security issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			conf.Scan.Path = args[0]
			conf.Scan.ReportFormat, _ = cmd.Flags().GetString("format")
			conf.Scan.OutputFile, _ = cmd.Flags().GetString("output")
			if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
				conf.Engine.WorkerConcurrency = concurrency
			}

			files, err := collectFiles(conf.Scan.Path)
			if err != nil {
				return fmt.Errorf("failed to collect source files: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported source files under %s", conf.Scan.Path)
			}

			logger.Info("Starting scan",
				zap.String("path", conf.Scan.Path),
				zap.Int("files", len(files)),
				zap.Int("concurrency", conf.Engine.WorkerConcurrency),
			)

			eng := engine.New(logger, conf)
			result, err := eng.ScanProject(ctx, files)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if conf.Store.Enabled {
				if err := persistResult(cmd, result); err != nil {
					// Persistence is best effort; the report still gets written.
					logger.Error("Failed to persist scan result", zap.Error(err))
				}
			}

			out, closeOut, err := openOutput(conf.Scan.OutputFile)
			if err != nil {
				return err
			}
			defer closeOut()

			reporter, err := reporting.NewReporter(conf.Scan.ReportFormat, out, logger)
			if err != nil {
				return err
			}
			if err := reporter.Write(result); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			if conf.Scan.OutputFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Scan complete: %d issues across %d files. Report written to %s\n",
					result.Metrics.IssueCount, result.Metrics.FilesAnalyzed, conf.Scan.OutputFile)
			}
			return nil
		},
	}

	scanCmd.Flags().StringP("format", "f", "json", "report format (json, sarif)")
	scanCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	scanCmd.Flags().Int("concurrency", 0, "override the number of analysis workers")
	return scanCmd
}

// collectFiles walks root and returns path -> content for every supported
// source file. A single-file root is returned as-is.
func collectFiles(root string) (map[string]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	if !info.IsDir() {
		data, err := os.ReadFile(root)
		if err != nil {
			return nil, err
		}
		files[root] = string(data)
		return files, nil
	}

	logger := observability.GetLogger()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if syntax.DetectLanguage(path) == syntax.LangUnknown {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxFileSizeBytes {
			logger.Warn("Skipping oversized file", zap.String("file", path), zap.Int64("bytes", fi.Size()))
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[path] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func persistResult(cmd *cobra.Command, result *schemas.ScanResult) error {
	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, conf.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer pool.Close()

	s, err := store.New(ctx, pool, observability.GetLogger())
	if err != nil {
		return err
	}
	return s.PersistScan(ctx, result)
}
