/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"golang.org/x/term"

	"github.com/vaultswap/vaultswap/src/prometheus"
	"github.com/vaultswap/vaultswap/src/report"
	"github.com/vaultswap/vaultswap/src/tokenize"
	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/vault"
)

var (
	disablePb          bool
	reportBucketURL    string
	reportPrefix       string
	startMetricsServer bool
	metricsPort        string
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize",
	Short: "Replace the sensitive columns of a table with vault tokens using CTAS+SWAP.",
	Long: `Snapshot the rows carrying sensitive values, tokenize every non-blank value
through the vault, rebuild the table with the tokens in place, verify the row
counts and atomically swap the rebuilt table in for the source table.

The source table is only modified by the final swap. On failure the scratch
tables are kept (see --cleanup-on-failure) and a later run with --resume
reuses the staged tokens. The snapshot is always taken again, and a staged
token is only kept while its row still holds the value it was issued for.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateTokenizeFlags()
	},

	Run: func(cmd *cobra.Command, args []string) {
		tokenizeTable(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(tokenizeCmd)
	registerWarehouseFlags(tokenizeCmd)
	registerVaultFlags(tokenizeCmd)
	registerTokenizeTableFlags(tokenizeCmd)

	tokenizeCmd.Flags().IntVar(&tokenizeConf.ParallelBatches, "parallel-batches", 1,
		"vault requests in flight per column")

	tokenizeCmd.Flags().BoolVar(&tokenizeConf.Resume, "resume", false,
		"reuse the staged tokens of an earlier failed run; tokens whose source value changed since are discarded and requested again")

	tokenizeCmd.Flags().BoolVar(&tokenizeConf.CleanupOnFailure, "cleanup-on-failure", false,
		"drop the scratch tables when the run fails (they are always kept when the swap itself fails)")

	tokenizeCmd.Flags().BoolVar(&disablePb, "disable-pb", false,
		"disable the per-column progress bars (they are off when stdout is not a terminal)")

	tokenizeCmd.Flags().StringVar(&reportBucketURL, "report-bucket-url", "",
		"bucket that receives a copy of the run report, e.g. s3://bucket?region=us-east-1, gs://bucket, azblob://container, file:///dir")

	tokenizeCmd.Flags().StringVar(&reportPrefix, "report-prefix", "vaultswap/reports",
		"object key prefix of the uploaded run report")

	tokenizeCmd.Flags().BoolVar(&startMetricsServer, "start-metrics-server", false,
		"expose Prometheus metrics while the run is in progress")

	tokenizeCmd.Flags().StringVar(&metricsPort, "metrics-port", prometheus.TOKENIZE_PROMETHEUS_METRICS_PORT,
		"port of the Prometheus metrics server")
}

func validateTokenizeFlags() {
	validateSourceTableFlag()
	if err := whConf.Validate(); err != nil {
		utils.ErrExit("ERROR: %v", err)
	}
	vaultConf.ApplyDefaults()
	if err := vaultConf.Validate(); err != nil {
		utils.ErrExit("ERROR: %v", err)
	}
	if err := tokenizeConf.Validate(); err != nil {
		utils.ErrExit("ERROR: %v", err)
	}
}

func tokenizeTable(ctx context.Context) {
	if startMetricsServer {
		if err := prometheus.StartMetricsServer(metricsPort); err != nil {
			log.Warnf("failed to start metrics server: %v", err)
		}
	}

	db, dialect := openWarehouse(ctx)
	defer db.Close()

	client, err := vault.NewClient(vaultConf)
	if err != nil {
		utils.ErrExit("ERROR: %v", err)
	}
	pipeline, err := tokenize.NewPipeline(db, dialect, client, tokenizeConf)
	if err != nil {
		utils.ErrExit("ERROR: %v", err)
	}

	var progressContainer *mpb.Progress
	if !disablePb && term.IsTerminal(int(os.Stdout.Fd())) {
		progressContainer = mpb.NewWithContext(ctx)
	}
	pipeline.WithProgress(progressContainer)

	utils.PrintAndLog("Tokenizing %s on %s: sensitive columns %s, batch size %d",
		pipeline.Tables().Source, whConf.Type, strings.Join(tokenizeConf.SensitiveColumns, ", "), client.BatchSize())
	res := pipeline.Run(ctx)
	if progressContainer != nil {
		progressContainer.Wait()
	}

	saveRunReport(ctx, res, client.BatchSize())
	printTokenizeResult(res)
	if !res.Success {
		utils.ErrExit("%s", res.Message)
	}
}

func saveRunReport(ctx context.Context, res *tokenize.Result, batchSize int) {
	runReport := report.NewRunReport(res, whConf.Type, batchSize, utils.VAULTSWAP_VERSION)
	path, err := report.Write(workDir, runReport)
	if err != nil {
		log.Errorf("%v", err)
		fmt.Println(color.YellowString("WARNING: could not write the run report: %v", err))
		return
	}
	fmt.Printf("Run report: %s\n", path)
	if reportBucketURL == "" {
		return
	}
	// the report is also wanted for runs stopped by a signal
	key, err := report.Upload(context.WithoutCancel(ctx), reportBucketURL, reportPrefix, path)
	if err != nil {
		log.Errorf("%v", err)
		fmt.Println(color.YellowString("WARNING: could not upload the run report: %v", err))
		return
	}
	fmt.Printf("Run report uploaded to %s as %s\n", reportBucketURL, key)
}

func printTokenizeResult(res *tokenize.Result) {
	if len(res.Columns) > 0 {
		table := uitable.New()
		table.AddRow("COLUMN", "VALUES", "TOKENS", "REUSED", "API CALLS", "DURATION")
		for _, c := range res.Columns {
			table.AddRow(c.Column, humanize.Comma(c.ValuesRead), humanize.Comma(c.TokensWritten), humanize.Comma(c.ReusedTokens),
				c.APICalls, c.Duration.Round(time.Millisecond))
		}
		fmt.Println()
		fmt.Println(table)
		fmt.Println()
	}
	if res.DiscardedTokens > 0 {
		fmt.Printf("Discarded %s staged token(s) whose source value changed since the earlier run\n", humanize.Comma(res.DiscardedTokens))
	}
	if res.Swap != nil && res.Swap.OrphanedTable != "" {
		fmt.Println(color.YellowString("WARNING: the previous plain-text table %s could not be dropped; drop it manually", res.Swap.OrphanedTable))
	}
	if res.Success {
		color.Green("%s", res.Message)
		return
	}
	if len(res.LeftBehind) > 0 {
		fmt.Printf("Scratch tables kept for inspection or --resume: %s\n", strings.Join(res.LeftBehind, ", "))
		fmt.Printf("Remove them with: vaultswap cleanup --source-table %s\n", res.Table)
	}
	if res.FailedStage != "" {
		fmt.Printf("Failed in stage %s (%s)\n", res.FailedStage, res.ErrorKind)
	}
}
