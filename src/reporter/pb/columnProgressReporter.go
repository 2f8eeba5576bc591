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
package pbreporter

import "github.com/vbauerster/mpb/v8"

// ColumnProgressReporter tracks the values tokenized for one sensitive column.
type ColumnProgressReporter interface {
	SetTotalValueCount(totalValueCount int64, triggerComplete bool)
	SetTokenizedValueCount(tokenizedValueCount int64)
	IsComplete() bool
	// Abort stops a bar that will not complete so the container can finish.
	Abort()
}

func NewColumnPB(progressContainer *mpb.Progress, columnName string, disablePb bool) ColumnProgressReporter {
	if disablePb || progressContainer == nil {
		return newDisablePBReporter()
	}
	return newEnablePBReporter(progressContainer, columnName)
}
