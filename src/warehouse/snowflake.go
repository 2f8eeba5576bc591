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
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

type Snowflake struct{}

func (s *Snowflake) Type() string { return sqlname.SNOWFLAKE }

func (s *Snowflake) Placeholder(int) string { return "?" }

func (s *Snowflake) infoSchema(t *sqlname.TableName) string {
	if db := t.Database(); db != "" {
		return sqlname.ExactIdentifier(sqlname.SNOWFLAKE, db).Quoted + ".INFORMATION_SCHEMA"
	}
	return "INFORMATION_SCHEMA"
}

func (s *Snowflake) TableExists(ctx context.Context, ex Executor, t *sqlname.TableName) (Existence, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.TABLES WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), CURRENT_SCHEMA()) AND TABLE_NAME = ?", s.infoSchema(t))
	n, err := queryCount(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return Absent, fmt.Errorf("check existence of %s: %w", t, err)
	}
	return existence(n), nil
}

func (s *Snowflake) ListColumns(ctx context.Context, ex Executor, t *sqlname.TableName) ([]string, error) {
	query := fmt.Sprintf("SELECT COLUMN_NAME FROM %s.COLUMNS WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), CURRENT_SCHEMA()) AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", s.infoSchema(t))
	cols, err := queryStrings(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", t, err)
	}
	return cols, nil
}

func (s *Snowflake) TextType() string { return "VARCHAR" }

func (s *Snowflake) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS VARCHAR)", expr)
}

func (s *Snowflake) TokenOrOriginal(token, original string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", token, s.CastToText(original))
}

func (s *Snowflake) UpsertSQL(stage *sqlname.TableName, rowIDCol string, valueCols []string, rows int) string {
	all := append([]string{rowIDCol}, valueCols...)
	aliases := lo.Map(all, func(c string, i int) string {
		return fmt.Sprintf("column%d AS %s", i+1, c)
	})
	updates := lo.Map(valueCols, func(c string, _ int) string {
		return fmt.Sprintf("t.%s = s.%s", c, c)
	})
	inserted := lo.Map(all, func(c string, _ int) string { return "s." + c })
	return fmt.Sprintf("MERGE INTO %s t USING (SELECT %s FROM VALUES %s) s "+
		"ON t.%s = s.%s "+
		"WHEN MATCHED THEN UPDATE SET %s "+
		"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		stage.Quoted(), strings.Join(aliases, ", "), valueTuples(s, rows, len(all)),
		rowIDCol, rowIDCol,
		strings.Join(updates, ", "),
		strings.Join(all, ", "), strings.Join(inserted, ", "))
}

func (s *Snowflake) CreateLike(ctx context.Context, ex Executor, source, target *sqlname.TableName) error {
	return createLike(ctx, ex, fmt.Sprintf("CREATE TABLE %s LIKE %s", target.Quoted(), source.Quoted()), target)
}

func (s *Snowflake) Swap(ctx context.Context, ex Executor, source, replacement *sqlname.TableName) error {
	stmt := fmt.Sprintf("ALTER TABLE %s SWAP WITH %s", source.Quoted(), replacement.Quoted())
	log.Infof("swap: %s", stmt)
	_, err := ex.ExecContext(ctx, stmt)
	return err
}
