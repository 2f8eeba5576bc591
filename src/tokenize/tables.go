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
package tokenize

import (
	"context"
	"errors"

	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/utils/sqlname"
)

const (
	ROW_ID_COLUMN             = "vs_row_id"
	TOKEN_COLUMN_SUFFIX       = "_token"
	FINGERPRINT_COLUMN_SUFFIX = "_fp"

	SNAPSHOT_SUFFIX    = "__vs_snap"
	STAGING_SUFFIX     = "__vs_stage"
	REPLACEMENT_SUFFIX = "__vs_new"
	SWAP_SUFFIX        = "__vs_swap"
)

// Tables names the source table and the scratch tables of a run. The scratch
// names derive from the source name so a later run finds leftovers.
type Tables struct {
	Source      *sqlname.TableName
	Snapshot    *sqlname.TableName
	Staging     *sqlname.TableName
	Replacement *sqlname.TableName
}

func NewTables(dbType, sourceTable string) (*Tables, error) {
	source, err := sqlname.NewTableName(dbType, sourceTable)
	if err != nil {
		return nil, err
	}
	return &Tables{
		Source:      source,
		Snapshot:    source.WithSuffix(SNAPSHOT_SUFFIX),
		Staging:     source.WithSuffix(STAGING_SUFFIX),
		Replacement: source.WithSuffix(REPLACEMENT_SUFFIX),
	}, nil
}

// Scratch lists every table a run may leave behind, including the parking
// name used during a rename based swap.
func (t *Tables) Scratch() []*sqlname.TableName {
	return []*sqlname.TableName{t.Snapshot, t.Staging, t.Replacement, t.Source.WithSuffix(SWAP_SUFFIX)}
}

func rowIDColumn(dbType string) string {
	return sqlname.NewIdentifier(dbType, ROW_ID_COLUMN).Quoted
}

func tokenColumn(dbType, column string) string {
	return sqlname.NewIdentifier(dbType, column+TOKEN_COLUMN_SUFFIX).Quoted
}

// fingerprintColumn holds the hash of the plaintext a staged token was issued for.
func fingerprintColumn(dbType, column string) string {
	return sqlname.NewIdentifier(dbType, column+FINGERPRINT_COLUMN_SUFFIX).Quoted
}

// warehouseErr classifies a failed statement. Cancellation is passed through
// untouched so callers can tell an interrupted run from a broken one.
func warehouseErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var te *errs.TokenizeError
	if errors.As(err, &te) {
		return err
	}
	return errs.New(errs.KindWarehouse, err)
}
