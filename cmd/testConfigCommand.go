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
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

var testConfigCmd = &cobra.Command{
	Use:   "test-config",
	Short: "Validate the configuration of a tokenize run without tokenizing anything.",
	Long: `Validate the warehouse, vault and table settings, connect to the warehouse and
check that the source table and the named columns exist. No request is sent to
the vault, since every request creates tokens.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateTokenizeFlags()
	},

	Run: func(cmd *cobra.Command, args []string) {
		testConfig(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(testConfigCmd)
	registerWarehouseFlags(testConfigCmd)
	registerVaultFlags(testConfigCmd)
	registerTokenizeTableFlags(testConfigCmd)
}

func testConfig(ctx context.Context) {
	db, dialect := openWarehouse(ctx)
	defer db.Close()
	fmt.Printf("%s connected to the %s warehouse\n", color.GreenString("OK"), whConf.Type)
	fmt.Printf("%s vault endpoint %s/v1/vaults/%s/%s, field %q, batch size %d\n",
		color.GreenString("OK"), vaultConf.BaseURL(), vaultConf.VaultID, vaultConf.Table, vaultConf.Field, vaultConf.BatchSize)

	tables := scratchTables(dialect)
	exists, err := dialect.TableExists(ctx, db, tables.Source)
	if err != nil {
		utils.ErrExit("failed to look up table %s: %v", tables.Source, err)
	}
	if exists == warehouse.Absent {
		utils.ErrExit("table %s does not exist", tables.Source)
	}
	columns, err := dialect.ListColumns(ctx, db, tables.Source)
	if err != nil {
		utils.ErrExit("failed to list the columns of %s: %v", tables.Source, err)
	}
	wanted := append(append([]string{tokenizeConf.KeyColumn}, tokenizeConf.OrderBy...), tokenizeConf.SensitiveColumns...)
	missing := lo.Filter(wanted, func(w string, _ int) bool {
		return !lo.ContainsBy(columns, func(c string) bool { return strings.EqualFold(c, w) })
	})
	if len(missing) > 0 {
		utils.ErrExit("columns not found in %s: %s", tables.Source, strings.Join(missing, ", "))
	}
	fmt.Printf("%s table %s has columns %s\n", color.GreenString("OK"), tables.Source, strings.Join(wanted, ", "))

	if leftovers := leftoverScratchTables(ctx, db, dialect, tables); len(leftovers) > 0 {
		fmt.Println(color.YellowString("NOTE: scratch tables of an earlier run exist: %s", strings.Join(leftovers, ", ")))
	}
	utils.PrintAndLog("Configuration is valid")
}
