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
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

var DoNotPrompt bool

func AskPrompt(args ...string) bool {
	if DoNotPrompt {
		return true
	}
	var input string
	fmt.Printf("%s? [Y/N]: ", strings.Join(args, " "))

	_, err := fmt.Scan(&input)
	if err != nil {
		return false
	}

	input = strings.ToUpper(strings.TrimSpace(input))
	return input == "Y" || input == "YES"
}

func FileOrFolderExists(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		} else {
			panic(err)
		}
	} else {
		return true
	}
}

func CsvStringToSlice(str string) []string {
	result := strings.Split(str, ",")
	var trimmed []string
	for _, s := range result {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence and
// marks the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func MapToString(m map[string]string) string {
	var parts []string
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ",")
}
