package main

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/fetcher"
	"github.com/gymdex/gymdex-cli/internal/model"
)

var (
	importSource string
	importFormat string
	importSheet  string
	importDelim  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the registry baseline dataset into the store",
	Long:  "Reads a registry export (json, csv, or xlsx) from a local path or an http/ftp URL and upserts it as the baseline dataset.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		path, cleanup, err := materializeSource(cmd, importSource)
		if err != nil {
			return err
		}
		defer cleanup()

		format := importFormat
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		}

		var records []model.BaselineRecord
		switch format {
		case "json":
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrap(err, "open baseline file")
			}
			defer f.Close()
			records, err = fetcher.ParseBaselineJSON(ctx, f)
			if err != nil {
				return eris.Wrap(err, "parse json baseline")
			}
		case "csv":
			f, err := os.Open(path)
			if err != nil {
				return eris.Wrap(err, "open baseline file")
			}
			defer f.Close()
			opts := fetcher.CSVOptions{}
			if importDelim != "" {
				opts.Delimiter = rune(importDelim[0])
			}
			records, err = fetcher.ParseBaselineCSV(ctx, f, opts)
			if err != nil {
				return eris.Wrap(err, "parse csv baseline")
			}
		case "xlsx":
			records, err = fetcher.ParseBaselineXLSX(path, fetcher.XLSXOptions{SheetName: importSheet})
			if err != nil {
				return eris.Wrap(err, "parse xlsx baseline")
			}
		default:
			return eris.Errorf("unsupported baseline format: %q (expected json, csv, or xlsx)", format)
		}

		saved, err := env.Store.SaveBaseline(ctx, records)
		if err != nil {
			return eris.Wrap(err, "save baseline")
		}

		zap.L().Info("baseline import complete",
			zap.Int("parsed", len(records)),
			zap.Int("saved", saved),
			zap.String("source", importSource),
		)
		cmd.Printf("imported %d baseline records\n", saved)
		return nil
	},
}

// materializeSource resolves the import source to a local file path,
// downloading http/ftp URLs into a temp file first.
func materializeSource(cmd *cobra.Command, source string) (string, func(), error) {
	noop := func() {}
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return source, noop, nil
	}

	ctx := cmd.Context()
	tmp, err := os.CreateTemp("", "gymdex-baseline-*"+filepath.Ext(u.Path))
	if err != nil {
		return "", noop, eris.Wrap(err, "create temp file")
	}
	tmp.Close() //nolint:errcheck
	cleanup := func() { os.Remove(tmp.Name()) } //nolint:errcheck

	switch u.Scheme {
	case "http", "https":
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})
		if _, err := f.DownloadToFile(ctx, source, tmp.Name()); err != nil {
			cleanup()
			return "", noop, eris.Wrap(err, "download baseline over http")
		}
	case "ftp":
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
		if _, err := f.DownloadToFile(ctx, source, tmp.Name()); err != nil {
			cleanup()
			return "", noop, eris.Wrap(err, "download baseline over ftp")
		}
	default:
		cleanup()
		return "", noop, eris.Errorf("unsupported source scheme: %s", u.Scheme)
	}
	return tmp.Name(), cleanup, nil
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "baseline file path or http/ftp URL (required)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "baseline format: json, csv, or xlsx (default from extension)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importDelim, "delimiter", "", "csv delimiter (default comma)")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
