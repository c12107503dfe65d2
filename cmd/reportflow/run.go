package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
	"github.com/creditlens/reportflow/internal/knowledge"
	deepseek "github.com/creditlens/reportflow/provider/deepseek"
)

// runCMD executes one report session from the command line, reading the
// transaction rows from a JSON file and printing the compiled report.
func runCMD() *cobra.Command {
	var cfgPath string
	var dataPath string
	var industry string

	var run = &cobra.Command{
		Use:   "run [question]",
		Short: "Generate one report and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(dataPath)
			if err != nil {
				return fmt.Errorf("reading data set: %w", err)
			}
			var rows []map[string]interface{}
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("parsing data set: %w", err)
			}

			llm, err := deepseek.NewClient(cfg.LLM)
			if err != nil {
				return err
			}
			engine := knowledge.NewClient(cfg.Engine)
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			logger := log.New(os.Stderr, "[ORCH] ", log.LstdFlags)

			ctx := context.Background()
			orch, err := core.NewOrchestrator(ctx, cfg, logger, tele, llm, engine)
			if err != nil {
				return err
			}

			report, err := orch.Run(ctx, core.ReportRequest{
				Question: args[0],
				Industry: industry,
				DataSet:  rows,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	run.Flags().StringVarP(&dataPath, "data", "d", "", "path to the JSON transaction rows (required)")
	run.Flags().StringVarP(&industry, "industry", "i", "", "industry hint for metric resolution")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = run.MarkFlagRequired("data")

	return run
}
