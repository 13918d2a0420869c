package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/ingest"
	"github.com/sells-group/crc-cores/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append documents from an export file to a source collection",
	Long: "Loads a CSV, JSON array, JSON lines or XLSX export into one of the source " +
		"collections, e.g. the CRC web site download into cores_raw.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		collection, _ := cmd.Flags().GetString("collection")
		if collection == "" {
			return eris.New("import: --collection is required")
		}

		formatName, _ := cmd.Flags().GetString("format")
		var (
			format ingest.Format
			err    error
		)
		if formatName != "" {
			format, err = ingest.ParseFormat(formatName)
		} else {
			format, err = ingest.FormatFromPath(path)
		}
		if err != nil {
			return err
		}

		keepStrings, _ := cmd.Flags().GetBool("keep-strings")
		sheet, _ := cmd.Flags().GetString("sheet")

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "import: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := ingest.Load(ctx, f, format, ingest.Options{SheetName: sheet, KeepStrings: keepStrings},
			cfg.Pipeline.InsertBatchSize, func(ctx context.Context, docs []model.Doc) error {
				return st.InsertDocs(ctx, collection, docs)
			})
		if err != nil {
			return eris.Wrapf(err, "import: %s into %s after %d documents", path, collection, n)
		}
		if n == 0 {
			// An empty export still creates the collection.
			if err := st.InsertDocs(ctx, collection, nil); err != nil {
				return eris.Wrapf(err, "import: create %s", collection)
			}
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.String("collection", collection),
			zap.String("format", string(format)),
			zap.Int("documents", n),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().String("collection", "", "source collection to append to (required)")
	importCmd.Flags().String("format", "", "csv, json, jsonl or xlsx (default from the file extension)")
	importCmd.Flags().String("sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().Bool("keep-strings", false, "keep CSV and XLSX cells as strings")
	rootCmd.AddCommand(importCmd)
}
