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

// DisablePBReporter keeps the counts without drawing anything; used when
// output is not a terminal or progress bars are turned off.
type DisablePBReporter struct {
	TotalValues     int64
	CurrentValues   int64
	IsCompleted     bool
	TriggerComplete bool
}

func newDisablePBReporter() *DisablePBReporter {
	return &DisablePBReporter{}
}

func (pbr *DisablePBReporter) SetTotalValueCount(totalValueCount int64, triggerComplete bool) {
	pbr.TriggerComplete = triggerComplete
	if totalValueCount < 0 {
		pbr.TotalValues = pbr.CurrentValues
	} else {
		pbr.TotalValues = totalValueCount
	}
	if triggerComplete && !pbr.IsCompleted {
		pbr.IsCompleted = true
		pbr.CurrentValues = pbr.TotalValues
	}
}

func (pbr *DisablePBReporter) SetTokenizedValueCount(tokenizedValueCount int64) {
	if tokenizedValueCount < 0 {
		tokenizedValueCount = 0
	}
	pbr.CurrentValues = tokenizedValueCount
	if pbr.TriggerComplete && pbr.CurrentValues >= pbr.TotalValues {
		pbr.CurrentValues = pbr.TotalValues
		pbr.IsCompleted = true
	}
}

func (pbr *DisablePBReporter) IsComplete() bool {
	return pbr.IsCompleted
}

func (pbr *DisablePBReporter) Abort() {}
