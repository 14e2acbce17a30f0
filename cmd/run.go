package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
)

var (
	runParams string
	runNoWait bool
)

var runCmd = &cobra.Command{
	Use:   "run <kind>",
	Short: "Run a discovery or audit job",
	Long: "Runs one job (discover, maps-scrape, ig-commenters, audit-websites) and polls it to completion.\n" +
		"Parameters are passed as a JSON object, e.g. --params '{\"niche\":\"dentist\",\"location\":\"Austin, TX\"}'.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := model.ParseRunKind(args[0])
		if err != nil {
			return err
		}
		params := json.RawMessage(strings.TrimSpace(runParams))
		if len(params) > 0 && !json.Valid(params) {
			return eris.New("--params must be a JSON object")
		}

		env, err := initApp(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orch.Submit(ctx, kind, params)
		if err != nil {
			return eris.Wrap(err, "submit run")
		}
		zap.L().Info("run submitted", zap.Int64("run_id", run.ID), zap.String("kind", string(kind)))

		if runNoWait {
			// The process owns the run; leaving now would abandon it.
			env.Orch.Wait()
		} else {
			run, err = env.Orch.Await(ctx, run.ID, cfg.Runs.PollInterval(), cfg.Runs.PollAttempts)
			if err != nil {
				return eris.Wrap(err, "await run")
			}
			if !run.Status.Terminal() {
				fmt.Fprintf(os.Stderr, "run %d still %s after %d polls; waiting for it to finish\n", run.ID, run.Status, cfg.Runs.PollAttempts)
				env.Orch.Wait()
			}
		}

		run, err = env.Orch.Get(ctx, run.ID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
		if run.Status == model.RunStatusError {
			return eris.Errorf("run %d failed: %s", run.ID, run.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runParams, "params", "", "run parameters as a JSON object")
	runCmd.Flags().BoolVar(&runNoWait, "no-wait", false, "skip status polling and only print the final record")
	rootCmd.AddCommand(runCmd)
}
