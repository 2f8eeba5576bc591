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

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

type Postgres struct{}

func (p *Postgres) Type() string { return sqlname.POSTGRESQL }

func (p *Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (p *Postgres) TableExists(ctx context.Context, ex Executor, t *sqlname.TableName) (Existence, error) {
	query := "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2"
	n, err := queryCount(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return Absent, fmt.Errorf("check existence of %s: %w", t, err)
	}
	return existence(n), nil
}

func (p *Postgres) ListColumns(ctx context.Context, ex Executor, t *sqlname.TableName) ([]string, error) {
	query := "SELECT column_name FROM information_schema.columns WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2 ORDER BY ordinal_position"
	cols, err := queryStrings(ctx, ex, query, t.Schema(), t.Table.Unquoted)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", t, err)
	}
	return cols, nil
}

func (p *Postgres) TextType() string { return "TEXT" }

func (p *Postgres) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (p *Postgres) TokenOrOriginal(token, original string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", token, p.CastToText(original))
}

func (p *Postgres) UpsertSQL(stage *sqlname.TableName, rowIDCol string, valueCols []string, rows int) string {
	updates := lo.Map(valueCols, func(c string, _ int) string {
		return fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	})
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO UPDATE SET %s",
		stage.Quoted(), strings.Join(append([]string{rowIDCol}, valueCols...), ", "),
		valueTuples(p, rows, len(valueCols)+1), rowIDCol, strings.Join(updates, ", "))
}

// CreateLike copies defaults, constraints, indexes and identity columns.
// Foreign keys are not copied.
func (p *Postgres) CreateLike(ctx context.Context, ex Executor, source, target *sqlname.TableName) error {
	return createLike(ctx, ex, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", target.Quoted(), source.Quoted()), target)
}

func (p *Postgres) Swap(ctx context.Context, ex Executor, source, replacement *sqlname.TableName) error {
	return renameInTx(ctx, ex, source, replacement, func(from *sqlname.TableName, to string) string {
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", from.Quoted(), to)
	})
}
