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

package errs

import "fmt"

// MismatchError carries both row counts of a failed consistency check.
type MismatchError struct {
	What    string // which pair of counts disagreed
	OldRows int64
	NewRows int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: row count mismatch (%d -> %d)", e.What, e.OldRows, e.NewRows)
}

func NewConsistencyError(what string, oldRows, newRows int64) *TokenizeError {
	return New(KindConsistency, &MismatchError{What: what, OldRows: oldRows, NewRows: newRows})
}

// UnrecognizedShapeError is returned when a vault response record matches none
// of the known token shapes. Payload is already truncated for logging.
type UnrecognizedShapeError struct {
	Field   string
	Payload string
}

func (e *UnrecognizedShapeError) Error() string {
	return fmt.Sprintf("unrecognized token shape for field %q: %s", e.Field, e.Payload)
}
