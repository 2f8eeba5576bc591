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

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

const SAMPLE_VALUE_MAX_WIDTH = 40

var sampleSize int

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Show the row count and a sample of a table, and any scratch tables left by earlier runs.",

	PreRun: func(cmd *cobra.Command, args []string) {
		validateSourceTableFlag()
		if sampleSize < 0 {
			utils.ErrExit("ERROR: sample-size must not be negative, got %d", sampleSize)
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		verifyTable(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	registerWarehouseFlags(verifyCmd)
	registerSourceTableFlag(verifyCmd)
	verifyCmd.Flags().IntVar(&sampleSize, "sample-size", 5,
		"rows of the table to print")
}

func verifyTable(ctx context.Context) {
	db, dialect := openWarehouse(ctx)
	defer db.Close()
	tables := scratchTables(dialect)

	exists, err := dialect.TableExists(ctx, db, tables.Source)
	if err != nil {
		utils.ErrExit("failed to look up table %s: %v", tables.Source, err)
	}
	if exists == warehouse.Absent {
		utils.ErrExit("table %s does not exist", tables.Source)
	}
	rows, err := warehouse.CountRows(ctx, db, tables.Source)
	if err != nil {
		utils.ErrExit("failed to count rows of %s: %v", tables.Source, err)
	}
	utils.PrintAndLog("Table %s: %s rows", tables.Source, humanize.Comma(rows))

	if sampleSize > 0 && rows > 0 {
		sample, err := sampleRows(ctx, db, tables.Source.Quoted(), sampleSize)
		if err != nil {
			utils.ErrExit("failed to read sample rows of %s: %v", tables.Source, err)
		}
		fmt.Println()
		fmt.Println(sample)
		fmt.Println()
	}

	leftovers := leftoverScratchTables(ctx, db, dialect, tables)
	if len(leftovers) == 0 {
		color.Green("No scratch tables left from earlier runs.")
		return
	}
	fmt.Println(color.YellowString("Scratch tables left from earlier runs:"))
	for _, t := range leftovers {
		fmt.Printf("  %s\n", t)
	}
	log.Infof("leftover scratch tables of %s: %v", tables.Source, leftovers)
	fmt.Printf("Resume with `vaultswap tokenize --resume` or remove them with `vaultswap cleanup --source-table %s`\n", tokenizeConf.SourceTable)
}

func sampleRows(ctx context.Context, db *sql.DB, quotedTable string, n int) (*uitable.Table, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quotedTable, n))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := uitable.New()
	table.MaxColWidth = SAMPLE_VALUE_MAX_WIDTH
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	table.AddRow(header...)

	values := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]interface{}, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "NULL"
			}
		}
		table.AddRow(row...)
	}
	return table, rows.Err()
}
