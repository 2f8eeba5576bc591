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
package sqlname

import (
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/samber/lo"
)

const (
	SNOWFLAKE  = "snowflake"
	POSTGRESQL = "postgresql"
	MYSQL      = "mysql"
	SQLITE     = "sqlite"
)

type identifier struct {
	Quoted, Unquoted, MinQuoted string
}

// NewIdentifier builds an identifier from user input. Unquoted names are
// folded the way the database folds them; quoted names keep their case.
func NewIdentifier(dbType, name string) identifier {
	if IsQuoted(name) {
		return ExactIdentifier(dbType, unquote(name))
	}
	return ExactIdentifier(dbType, fold(dbType, name))
}

// ExactIdentifier builds an identifier for a name read from the catalog,
// which already has its stored case.
func ExactIdentifier(dbType, name string) identifier {
	return identifier{
		Quoted:    quote(dbType, name),
		Unquoted:  name,
		MinQuoted: minQuote(dbType, name),
	}
}

func (i identifier) String() string {
	return i.MinQuoted
}

// TableName is a possibly qualified table name: [db.][schema.]table.
type TableName struct {
	DBType    string
	Namespace []identifier // database and schema parts, outermost first
	Table     identifier
}

func NewTableName(dbType, name string) (*TableName, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 3 || lo.Contains(parts, "") {
		return nil, goerrors.Errorf("invalid table name %q", name)
	}
	ids := lo.Map(parts, func(p string, _ int) identifier { return NewIdentifier(dbType, p) })
	return &TableName{
		DBType:    dbType,
		Namespace: ids[:len(ids)-1],
		Table:     ids[len(ids)-1],
	}, nil
}

// WithSuffix names a sibling table in the same namespace, used for the
// scratch tables of a run.
func (t *TableName) WithSuffix(suffix string) *TableName {
	return &TableName{
		DBType:    t.DBType,
		Namespace: t.Namespace,
		Table:     ExactIdentifier(t.DBType, t.Table.Unquoted+fold(t.DBType, suffix)),
	}
}

// Quoted is the fully qualified, quoted name for use in SQL.
func (t *TableName) Quoted() string {
	parts := lo.Map(t.Namespace, func(i identifier, _ int) string { return i.Quoted })
	return strings.Join(append(parts, t.Table.Quoted), ".")
}

// Schema returns the unquoted schema part, or "" when the name is unqualified.
func (t *TableName) Schema() string {
	if len(t.Namespace) == 0 {
		return ""
	}
	return t.Namespace[len(t.Namespace)-1].Unquoted
}

// Database returns the unquoted database part of a three part name.
func (t *TableName) Database() string {
	if len(t.Namespace) < 2 {
		return ""
	}
	return t.Namespace[0].Unquoted
}

func (t *TableName) String() string {
	parts := lo.Map(t.Namespace, func(i identifier, _ int) string { return i.MinQuoted })
	return strings.Join(append(parts, t.Table.MinQuoted), ".")
}

// Key is a stable, unquoted form used for metric labels and file names.
func (t *TableName) Key() string {
	parts := lo.Map(t.Namespace, func(i identifier, _ int) string { return i.Unquoted })
	return strings.Join(append(parts, t.Table.Unquoted), ".")
}

func IsQuoted(s string) bool {
	return len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '`' && s[len(s)-1] == '`'))
}

func unquote(s string) string {
	return s[1 : len(s)-1]
}

func fold(dbType, s string) string {
	switch dbType {
	case SNOWFLAKE:
		return strings.ToUpper(s)
	case POSTGRESQL:
		return strings.ToLower(s)
	default:
		return s
	}
}

func quote(dbType, s string) string {
	switch dbType {
	case MYSQL:
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	case SNOWFLAKE, POSTGRESQL, SQLITE:
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	default:
		panic(fmt.Sprintf("unknown db type %q", dbType))
	}
}

func minQuote(dbType, s string) string {
	if fold(dbType, s) == s && isPlain(s) {
		return s
	}
	return quote(dbType, s)
}

func isPlain(s string) bool {
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return s != ""
}
