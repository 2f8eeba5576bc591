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
package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordVaultRequestAndTokens(t *testing.T) {
	RecordVaultRequest("customers", "email", "ok", 10*time.Millisecond)
	RecordVaultRequest("customers", "email", "ok", 20*time.Millisecond)
	RecordVaultRequest("customers", "email", "AuthError", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(vaultRequestsTotal.WithLabelValues("customers", "email", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vaultRequestsTotal.WithLabelValues("customers", "email", "AuthError")))

	RecordTokensWritten("customers", "email", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(tokensWrittenTotal.WithLabelValues("customers", "email")))
}

func TestSetStage(t *testing.T) {
	SetStage("orders", "", "SNAPSHOTTING")
	SetStage("orders", "SNAPSHOTTING", "TOKENIZING")
	assert.Equal(t, 0.0, testutil.ToFloat64(pipelineStage.WithLabelValues("orders", GetSessionID(), "SNAPSHOTTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pipelineStage.WithLabelValues("orders", GetSessionID(), "TOKENIZING")))
}
