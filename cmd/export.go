package main

import (
	"bufio"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/export"
	"github.com/sells-group/crc-cores/internal/model"
	"github.com/sells-group/crc-cores/internal/store"
)

// exportPageSize is the number of output records read per query.
const exportPageSize = 1000

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the cores collection to a file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		formatName, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		outPath, _ := cmd.Flags().GetString("out")

		st, err := openStore(ctx, "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		output := collectionsFromConfig(cfg.Collections).Output
		records, err := readAllOutput(cmd, st, output)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if outPath != "" && outPath != "-" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", outPath)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}

		bw := bufio.NewWriter(w)
		n, err := export.Write(bw, format, records)
		if err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return eris.Wrap(err, "export: flush")
		}

		zap.L().Info("export complete",
			zap.String("format", string(format)),
			zap.String("collection", output),
			zap.Int("records", n),
		)
		return nil
	},
}

func readAllOutput(cmd *cobra.Command, st store.Store, name string) ([]model.OutputRecord, error) {
	var all []model.OutputRecord
	for offset := 0; ; offset += exportPageSize {
		page, err := st.ListOutput(cmd.Context(), name, exportPageSize, offset)
		if err != nil {
			return nil, eris.Wrapf(err, "export: read %s", name)
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
	}
}

func init() {
	exportCmd.Flags().String("format", "jsonl", "jsonl, sbitem or xlsx")
	exportCmd.Flags().String("out", "", "output path (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
