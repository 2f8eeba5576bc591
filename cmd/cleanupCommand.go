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
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vaultswap/vaultswap/src/tokenize"
	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop the scratch tables that earlier tokenize runs left for a table.",
	Long: `Drop the snapshot, staging, replacement and swap parking tables of a source
table. Staged tokens are lost, so a later tokenize run starts from scratch.
Nothing is dropped while the source table itself is missing, since a scratch
table may then hold the only copy of its rows.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateSourceTableFlag()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cleanupScratchTables(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	registerWarehouseFlags(cleanupCmd)
	registerSourceTableFlag(cleanupCmd)
}

func cleanupScratchTables(ctx context.Context) {
	db, dialect := openWarehouse(ctx)
	defer db.Close()
	tables := scratchTables(dialect)

	exists, err := dialect.TableExists(ctx, db, tables.Source)
	if err != nil {
		utils.ErrExit("failed to look up table %s: %v", tables.Source, err)
	}
	if exists == warehouse.Absent {
		utils.ErrExit("table %s does not exist; refusing to drop its scratch tables", tables.Source)
	}

	leftovers := leftoverScratchTables(ctx, db, dialect, tables)
	if len(leftovers) == 0 {
		utils.PrintAndLog("No scratch tables found for %s", tables.Source)
		return
	}
	fmt.Printf("Scratch tables of %s: %s\n", tables.Source, strings.Join(leftovers, ", "))
	if !utils.AskPrompt("Drop these tables") {
		utils.PrintAndLog("Aborting cleanup")
		return
	}

	dropped := tokenize.NewSwapController(db, dialect, tables).DropScratch(ctx, tables.Scratch()...)
	if len(dropped) < len(tables.Scratch()) {
		utils.ErrExit("failed to drop some scratch tables of %s; see the log for details", tables.Source)
	}
	color.Green("Dropped the scratch tables of %s", tables.Source)
}
