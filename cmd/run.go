package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crc-cores/internal/config"
	"github.com/sells-group/crc-cores/internal/cores"
	"github.com/sells-group/crc-cores/internal/resilience"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the cores collection",
	Long: "Loads the four source collections, groups and enriches wells, and replaces the " +
		"output collection. Asks for confirmation before replacing unless --yes is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}

		st, err := openStore(ctx, "run")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts, err := pipelineOptions(cfg.Pipeline)
		if err != nil {
			return err
		}
		retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
		eng := cores.NewEngine(st, cores.NewPipeline(opts), collectionsFromConfig(cfg.Collections), retry)

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")

		runOpts := cores.RunOpts{
			DryRun:  dryRun,
			Timeout: time.Duration(cfg.Pipeline.TimeoutSecs) * time.Second,
		}
		if !yes {
			in := bufio.NewReader(cmd.InOrStdin())
			output := collectionsFromConfig(cfg.Collections).Output
			runOpts.Confirm = func(s *cores.Summary) bool {
				return confirmReplace(in, cmd.ErrOrStderr(), output, s)
			}
		}

		sum, err := eng.Run(ctx, runOpts)
		if sum != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(sum); encErr != nil {
				return eris.Wrap(encErr, "run: encode summary")
			}
		}
		if eris.Is(err, cores.ErrNotConfirmed) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Aborted; the output collection was not changed.")
			return nil
		}
		return err
	},
}

// applyRunFlags overlays explicitly set flags on the loaded config. The
// deadline is kept in whole seconds, so --timeout must be one; --timeout 0
// disables it.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		c.Pipeline.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		if d < 0 || d%time.Second != 0 {
			return eris.Errorf("run: --timeout %s must be a whole number of seconds", d)
		}
		c.Pipeline.TimeoutSecs = int(d / time.Second)
	}
	if flags.Changed("match-policy") {
		c.Pipeline.MatchPolicy, _ = flags.GetString("match-policy")
	}
	if flags.Changed("missing-url") {
		c.Pipeline.MissingURL, _ = flags.GetString("missing-url")
	}
	return nil
}

// pipelineOptions converts the pipeline config into transform options.
func pipelineOptions(pc config.PipelineConfig) (cores.Options, error) {
	match, err := cores.ParseMatchPolicy(pc.MatchPolicy)
	if err != nil {
		return cores.Options{}, err
	}
	missing, err := cores.ParseMissingURLPolicy(pc.MissingURL)
	if err != nil {
		return cores.Options{}, err
	}

	opts := cores.Options{
		Concurrency:     pc.Concurrency,
		ReportURLPrefix: pc.ReportURLPrefix,
		MatchPolicy:     match,
		MissingURL:      missing,
	}
	if len(pc.Filter) > 0 {
		ff := make(cores.FieldFilter, 0, len(pc.Filter))
		for _, r := range pc.Filter {
			ff = append(ff, cores.FieldRule{Field: r.Field, Value: r.Value})
		}
		opts.Filter = ff
	}
	return opts, nil
}

// confirmReplace prints the run summary and reads a yes/no answer.
func confirmReplace(in *bufio.Reader, out io.Writer, output string, s *cores.Summary) bool {
	fmt.Fprintf(out, "Replace %q with %d wells (%d intervals, %d filtered out).\n",
		output, s.Wells-s.Filtered, s.Intervals, s.Filtered)
	if len(s.Warnings) > 0 {
		kinds := make([]string, 0, len(s.Warnings))
		for k := range s.Warnings {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(out, "  %s: %d\n", k, s.Warnings[k])
		}
	}
	fmt.Fprint(out, "Proceed? [y/N] ")

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func init() {
	runCmd.Flags().Bool("yes", false, "replace the output without asking")
	runCmd.Flags().Bool("dry-run", false, "transform only; do not write the output")
	runCmd.Flags().Duration("timeout", 0, "overall job deadline (default from config)")
	runCmd.Flags().Int("concurrency", 0, "partitions enriched at once (default from config)")
	runCmd.Flags().String("match-policy", "", "first, warn or strict (default from config)")
	runCmd.Flags().String("missing-url", "", "skip or legacy (default from config)")
	rootCmd.AddCommand(runCmd)
}
