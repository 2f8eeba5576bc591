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
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

type SQLite struct{}

func (s *SQLite) Type() string { return sqlname.SQLITE }

func (s *SQLite) Placeholder(int) string { return "?" }

func (s *SQLite) master(t *sqlname.TableName) string {
	if schema := t.Schema(); schema != "" {
		return sqlname.ExactIdentifier(sqlname.SQLITE, schema).Quoted + ".sqlite_master"
	}
	return "sqlite_master"
}

func (s *SQLite) TableExists(ctx context.Context, ex Executor, t *sqlname.TableName) (Existence, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE type = 'table' AND name = ?", s.master(t))
	n, err := queryCount(ctx, ex, query, t.Table.Unquoted)
	if err != nil {
		return Absent, fmt.Errorf("check existence of %s: %w", t, err)
	}
	return existence(n), nil
}

func (s *SQLite) ListColumns(ctx context.Context, ex Executor, t *sqlname.TableName) ([]string, error) {
	schema := t.Schema()
	if schema == "" {
		schema = "main"
	}
	cols, err := queryStrings(ctx, ex, "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", t.Table.Unquoted, schema)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", t, err)
	}
	return cols, nil
}

func (s *SQLite) TextType() string { return "TEXT" }

func (s *SQLite) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (s *SQLite) TokenOrOriginal(token, original string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", token, original)
}

func (s *SQLite) UpsertSQL(stage *sqlname.TableName, rowIDCol string, valueCols []string, rows int) string {
	updates := lo.Map(valueCols, func(c string, _ int) string {
		return fmt.Sprintf("%s = excluded.%s", c, c)
	})
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO UPDATE SET %s",
		stage.Quoted(), strings.Join(append([]string{rowIDCol}, valueCols...), ", "),
		valueTuples(s, rows, len(valueCols)+1), rowIDCol, strings.Join(updates, ", "))
}

var createTableHead = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?("[^"]*(""[^"]*)*"|` + "`[^`]*`" + `|\[[^\]]*\]|[^\s(]+)\s*`)

// CreateLike replays the stored CREATE TABLE statement of source under the
// name of target. Separately created indexes are not copied.
func (s *SQLite) CreateLike(ctx context.Context, ex Executor, source, target *sqlname.TableName) error {
	var ddl sql.NullString
	query := fmt.Sprintf("SELECT sql FROM %s WHERE type = 'table' AND name = ?", s.master(source))
	if err := ex.QueryRowContext(ctx, query, source.Table.Unquoted).Scan(&ddl); err != nil {
		return fmt.Errorf("read definition of %s: %w", source, err)
	}
	loc := createTableHead.FindStringIndex(ddl.String)
	if loc == nil {
		return fmt.Errorf("unrecognised definition of %s: %q", source, ddl.String)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s %s", target.Quoted(), ddl.String[loc[1]:])
	return createLike(ctx, ex, stmt, target)
}

func (s *SQLite) Swap(ctx context.Context, ex Executor, source, replacement *sqlname.TableName) error {
	return renameInTx(ctx, ex, source, replacement, func(from *sqlname.TableName, to string) string {
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", from.Quoted(), to)
	})
}
