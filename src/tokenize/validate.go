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

	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/warehouse"
)

type Validation struct {
	SourceRows         int64 `json:"source_rows"`
	ReplacementRows    int64 `json:"replacement_rows"`
	SnapshotSourceRows int64 `json:"snapshot_source_rows"`
}

type Validator struct {
	ex warehouse.Executor
}

func NewValidator(ex warehouse.Executor) *Validator {
	return &Validator{ex: ex}
}

// Validate allows the swap only when the replacement holds as many rows as
// the source does now, and the source still holds as many as it did when the
// snapshot was taken.
func (v *Validator) Validate(ctx context.Context, snap *Snapshot) (Validation, error) {
	var result Validation
	var err error
	result.SnapshotSourceRows = snap.SourceRows
	if result.SourceRows, err = warehouse.CountRows(ctx, v.ex, snap.Tables.Source); err != nil {
		return result, warehouseErr(err)
	}
	if result.ReplacementRows, err = warehouse.CountRows(ctx, v.ex, snap.Tables.Replacement); err != nil {
		return result, warehouseErr(err)
	}
	if result.SourceRows != result.ReplacementRows {
		return result, errs.NewConsistencyError("source vs replacement", result.SourceRows, result.ReplacementRows)
	}
	if result.SourceRows != result.SnapshotSourceRows {
		return result, errs.NewConsistencyError("source changed since snapshot", result.SnapshotSourceRows, result.SourceRows)
	}
	log.Infof("validated %s: %d rows in source and replacement", snap.Tables.Source, result.SourceRows)
	return result, nil
}
