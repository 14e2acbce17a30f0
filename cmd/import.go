package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/source"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import leads from a CSV or XLSX export",
	Long:  "Imports leads from Instagram, Facebook, map or hand-made exports. Rows without a handle, place id or website are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}

		scorer, err := initScorer(cfg.Scoring)
		if err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		src := source.NormalizeSource(importSource)
		var stream source.Stream
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			stream = source.XLSXRows(ctx, data, src)
		} else {
			stream = source.CSVRows(ctx, bytes.NewReader(data), src)
		}

		sum, err := pipeline.NewIngester(st, scorer).Ingest(ctx, stream, pipeline.Options{Source: src})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.String("source", string(src)),
			zap.Int("imported", sum.Imported),
			zap.Int("created", sum.Created),
			zap.Int("skipped", sum.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "manual", "source label for the imported leads")
	rootCmd.AddCommand(importCmd)
}
