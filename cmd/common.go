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
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/tokenize"
	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

var (
	whConf       config.WarehouseConfig
	vaultConf    config.VaultConfig
	tokenizeConf config.TokenizeConfig
)

func registerWarehouseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&whConf.Type, "warehouse-type", config.SNOWFLAKE,
		fmt.Sprintf("warehouse type: %v", config.SupportedWarehouseTypes))

	cmd.Flags().StringVar(&whConf.DSN, "warehouse-dsn", "",
		"driver DSN of the warehouse. Required for postgresql, mysql and sqlite; overrides the snowflake connection flags")

	cmd.Flags().StringVar(&whConf.Account, "warehouse-account", "",
		"[For Snowflake Only] account identifier")

	cmd.Flags().StringVar(&whConf.User, "warehouse-user", "",
		"[For Snowflake Only] user to connect as")

	cmd.Flags().StringVar(&whConf.Password, "warehouse-password", "",
		"[For Snowflake Only] password of the user")

	cmd.Flags().StringVar(&whConf.Warehouse, "warehouse-name", "",
		"[For Snowflake Only] virtual warehouse that runs the statements")

	cmd.Flags().StringVar(&whConf.Database, "warehouse-database", "",
		"[For Snowflake Only] default database")

	cmd.Flags().StringVar(&whConf.Schema, "warehouse-schema", "",
		"[For Snowflake Only] default schema")

	cmd.Flags().StringVar(&whConf.Role, "warehouse-role", "",
		"[For Snowflake Only] role to assume")
}

func registerVaultFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&vaultConf.URL, "vault-url", "",
		"vault URL or bare host (https:// is assumed)")

	cmd.Flags().StringVar(&vaultConf.VaultID, "vault-id", "",
		"identifier of the vault")

	cmd.Flags().StringVar(&vaultConf.Table, "vault-table", "",
		"vault table the values are inserted into")

	cmd.Flags().StringVar(&vaultConf.Field, "vault-field", config.DEFAULT_VAULT_FIELD,
		"column of the vault table that receives each value")

	cmd.Flags().StringVar(&vaultConf.PATToken, "vault-pat-token", "",
		"personal access token sent as a bearer token")

	cmd.Flags().IntVar(&vaultConf.BatchSize, "batch-size", config.DEFAULT_BATCH_SIZE,
		fmt.Sprintf("values per tokenization request (max %d)", config.MAX_BATCH_SIZE))

	cmd.Flags().DurationVar(&vaultConf.Timeout, "vault-timeout", config.DEFAULT_HTTP_TIMEOUT,
		"timeout of a single vault request attempt")

	cmd.Flags().IntVar(&vaultConf.MaxAttempts, "vault-max-attempts", config.DEFAULT_MAX_ATTEMPTS,
		"attempts per vault request for rate limiting, server errors and transport failures")
}

func registerSourceTableFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tokenizeConf.SourceTable, "source-table", "",
		"table to tokenize, as [database.][schema.]table")
}

func registerTokenizeTableFlags(cmd *cobra.Command) {
	registerSourceTableFlag(cmd)

	cmd.Flags().StringVar(&tokenizeConf.KeyColumn, "key-column", "",
		"column that identifies a row; must be unique and non-null in rows with sensitive values")

	cmd.Flags().StringSliceVar(&tokenizeConf.OrderBy, "order-by", nil,
		"comma separated tiebreak columns ordering the snapshot after the key column")

	cmd.Flags().StringSliceVar(&tokenizeConf.SensitiveColumns, "sensitive-columns", nil,
		"comma separated columns whose values are replaced by tokens")
}

func validateSourceTableFlag() {
	if tokenizeConf.SourceTable == "" {
		utils.ErrExit(`ERROR: required flag "source-table" not set`)
	}
}

func openWarehouse(ctx context.Context) (*sql.DB, warehouse.Dialect) {
	db, dialect, err := warehouse.Open(ctx, whConf)
	if err != nil {
		utils.ErrExit("failed to connect to the %s warehouse: %v", whConf.Type, err)
	}
	return db, dialect
}

func scratchTables(dialect warehouse.Dialect) *tokenize.Tables {
	tables, err := tokenize.NewTables(dialect.Type(), tokenizeConf.SourceTable)
	if err != nil {
		utils.ErrExit("invalid source table %q: %v", tokenizeConf.SourceTable, err)
	}
	return tables
}

// leftoverScratchTables lists the scratch tables of tables that exist in the
// warehouse.
func leftoverScratchTables(ctx context.Context, db *sql.DB, dialect warehouse.Dialect, tables *tokenize.Tables) []string {
	var found []string
	for _, t := range tables.Scratch() {
		ex, err := dialect.TableExists(ctx, db, t)
		if err != nil {
			log.Warnf("check existence of %s: %v", t, err)
			continue
		}
		if ex == warehouse.Present {
			found = append(found, t.String())
		}
	}
	return found
}
