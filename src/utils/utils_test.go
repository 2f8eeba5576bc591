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
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCsvStringToSlice(t *testing.T) {
	assert.Equal(t, []string{"email", "phone_number"}, CsvStringToSlice(" email, phone_number ,,"))
	assert.Nil(t, CsvStringToSlice(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	// "é" is two bytes; cutting inside it must back off to the rune start.
	assert.Equal(t, "a...", Truncate("aéb", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
