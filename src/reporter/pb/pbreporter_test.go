//go:build unit

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

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vbauerster/mpb/v8"
)

func TestDisablePBReporter(t *testing.T) {
	pbr := NewColumnPB(nil, "email", false)
	pbr.SetTotalValueCount(10, false)
	pbr.SetTokenizedValueCount(4)
	assert.False(t, pbr.IsComplete())

	pbr.SetTotalValueCount(-1, true)
	assert.True(t, pbr.IsComplete())
	assert.Equal(t, int64(4), pbr.(*DisablePBReporter).TotalValues)
}

func TestDisablePBReporterCompletesOnCount(t *testing.T) {
	pbr := newDisablePBReporter()
	pbr.TriggerComplete = true
	pbr.TotalValues = 3
	pbr.SetTokenizedValueCount(5)
	assert.True(t, pbr.IsComplete())
	assert.Equal(t, int64(3), pbr.CurrentValues)
}

func TestEnablePBReporterAbortLetsContainerFinish(t *testing.T) {
	progress := mpb.New(mpb.WithOutput(io.Discard))
	done := NewColumnPB(progress, "email", false)
	done.SetTotalValueCount(2, false)
	done.SetTokenizedValueCount(2)
	done.SetTotalValueCount(-1, true)

	failed := NewColumnPB(progress, "phone", false)
	failed.SetTotalValueCount(10, false)
	failed.SetTokenizedValueCount(3)
	assert.False(t, failed.IsComplete())
	failed.Abort()

	progress.Wait()
	assert.True(t, done.IsComplete())
}
