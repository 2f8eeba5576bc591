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
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

// Executor is the live SQL handle the engine runs against. *sql.DB
// satisfies it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Existence is the outcome of a catalog lookup.
type Existence int

const (
	Absent Existence = iota
	Present
)

func (e Existence) String() string {
	if e == Present {
		return "present"
	}
	return "absent"
}

// Dialect holds everything that differs between the supported warehouses.
type Dialect interface {
	Type() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	TableExists(ctx context.Context, ex Executor, t *sqlname.TableName) (Existence, error)
	// ListColumns returns the column names of t in ordinal order, as stored.
	ListColumns(ctx context.Context, ex Executor, t *sqlname.TableName) ([]string, error)
	TextType() string
	CastToText(expr string) string
	// TokenOrOriginal is the rebuild expression for one sensitive column.
	TokenOrOriginal(token, original string) string
	// UpsertSQL merges rows tuples of (rowIDCol, valueCols...) into stage,
	// overwriting valueCols of rows already present.
	UpsertSQL(stage *sqlname.TableName, rowIDCol string, valueCols []string, rows int) string
	// CreateLike creates an empty target carrying the column types,
	// constraints and defaults of source.
	CreateLike(ctx context.Context, ex Executor, source, target *sqlname.TableName) error
	// Swap atomically exchanges the contents of source and replacement.
	Swap(ctx context.Context, ex Executor, source, replacement *sqlname.TableName) error
}

func New(dbType string) (Dialect, error) {
	switch dbType {
	case sqlname.SNOWFLAKE:
		return &Snowflake{}, nil
	case sqlname.POSTGRESQL:
		return &Postgres{}, nil
	case sqlname.MYSQL:
		return &MySQL{}, nil
	case sqlname.SQLITE:
		return &SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported warehouse type %q", dbType)
	}
}

// Quote quotes a catalog column name for d.
func Quote(d Dialect, name string) string {
	return sqlname.ExactIdentifier(d.Type(), name).Quoted
}

func CountRows(ctx context.Context, ex Executor, t *sqlname.TableName) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.Quoted())
	if err := ex.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", t, err)
	}
	log.Infof("Table %s has %d rows.", t, n)
	return n, nil
}

func CreateTableAs(ctx context.Context, ex Executor, t *sqlname.TableName, selectSQL string, args ...any) error {
	query := fmt.Sprintf("CREATE TABLE %s AS %s", t.Quoted(), selectSQL)
	log.Debugf("creating table %s: %s", t, query)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create table %s: %w", t, err)
	}
	return nil
}

// InsertSelect fills t from selectSQL, whose projection lines up with columns.
// Values are kept as selected, identity columns included.
func InsertSelect(ctx context.Context, ex Executor, d Dialect, t *sqlname.TableName, columns []string, selectSQL string, args ...any) error {
	overriding := ""
	if d.Type() == sqlname.POSTGRESQL {
		overriding = "OVERRIDING SYSTEM VALUE "
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) %s%s", t.Quoted(), strings.Join(columns, ", "), overriding, selectSQL)
	log.Debugf("filling table %s: %s", t, query)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("fill table %s: %w", t, err)
	}
	return nil
}

func DropTableIfExists(ctx context.Context, ex Executor, t *sqlname.TableName) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Quoted())
	if _, err := ex.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("drop table %s: %w", t, err)
	}
	log.Infof("dropped table %s", t)
	return nil
}

func queryCount(ctx context.Context, ex Executor, query string, args ...any) (int64, error) {
	var n int64
	err := ex.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func queryStrings(ctx context.Context, ex Executor, query string, args ...any) ([]string, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// valueTuples renders rows parenthesised tuples of width bind markers.
func valueTuples(d Dialect, rows, width int) string {
	tuples := make([]string, rows)
	for i := range tuples {
		marks := make([]string, width)
		for j := range marks {
			marks[j] = d.Placeholder(i*width + j + 1)
		}
		tuples[i] = "(" + strings.Join(marks, ", ") + ")"
	}
	return strings.Join(tuples, ", ")
}

func createLike(ctx context.Context, ex Executor, stmt string, target *sqlname.TableName) error {
	log.Infof("creating table %s: %s", target, stmt)
	if _, err := ex.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", target, err)
	}
	return nil
}

func existence(n int64) Existence {
	if n > 0 {
		return Present
	}
	return Absent
}

// renameInTx exchanges source and replacement with three renames in one
// transaction, for engines without a native exchange statement.
func renameInTx(ctx context.Context, ex Executor, source, replacement *sqlname.TableName, rename func(from *sqlname.TableName, to string) string) (err error) {
	parking := source.WithSuffix("__vs_swap")
	tx, err := ex.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warnf("rollback of swap transaction: %v", rbErr)
			}
		}
	}()
	for _, stmt := range []string{
		rename(source, parking.Table.Quoted),
		rename(replacement, source.Table.Quoted),
		rename(parking, replacement.Table.Quoted),
	} {
		log.Infof("swap: %s", stmt)
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
