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

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a tokenization failure by what the caller can do about it.
type Kind int

const (
	KindUnknown Kind = iota
	// vault unreachable, timed out or kept failing with 429/5xx
	KindConnectivity
	// credential rejected by the vault
	KindAuth
	// vault rejected the request (4xx other than auth)
	KindRequest
	// unrecognized vault response shape
	KindSchema
	// source table or its columns are missing or unusable
	KindData
	// row-count mismatch before the swap
	KindConsistency
	// the atomic exchange itself failed
	KindSwap
	// a warehouse statement failed outside the cases above
	KindWarehouse
)

var kindNames = map[Kind]string{
	KindUnknown:      "UnknownError",
	KindConnectivity: "ConnectivityError",
	KindAuth:         "AuthError",
	KindRequest:      "RequestError",
	KindSchema:       "SchemaError",
	KindData:         "DataError",
	KindConsistency:  "ConsistencyError",
	KindSwap:         "SwapError",
	KindWarehouse:    "WarehouseError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Retryable reports whether a later attempt may succeed without operator action.
func (k Kind) Retryable() bool {
	return k == KindConnectivity
}

// TokenizeError is the error surfaced by every pipeline stage. It records the
// stage that failed and the stages completed before it.
type TokenizeError struct {
	kind   Kind
	stage  string   // stage that failed
	steps  []string // stages completed before the failure
	column string   // sensitive column being processed, if any
	err    error
}

func (e *TokenizeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.kind.String())
	if e.stage != "" {
		sb.WriteString(" in " + e.stage)
	}
	if e.column != "" {
		sb.WriteString(fmt.Sprintf(" (column %q)", e.column))
	}
	if len(e.steps) > 0 {
		sb.WriteString(fmt.Sprintf(", after stages - (%s)", strings.Join(e.steps, ", ")))
	}
	sb.WriteString(": ")
	sb.WriteString(e.err.Error())
	return sb.String()
}

func (e *TokenizeError) Kind() Kind {
	return e.kind
}

func (e *TokenizeError) Stage() string {
	return e.stage
}

func (e *TokenizeError) Steps() []string {
	return e.steps
}

func (e *TokenizeError) Column() string {
	return e.column
}

func (e *TokenizeError) Unwrap() error {
	return e.err
}

// WithStage returns a copy of e attributed to stage, with the completed stages
// recorded. A stage already set by an inner call is kept.
func (e *TokenizeError) WithStage(stage string, steps []string) *TokenizeError {
	cp := *e
	if cp.stage == "" {
		cp.stage = stage
	}
	cp.steps = append([]string(nil), steps...)
	return &cp
}

func (e *TokenizeError) WithColumn(column string) *TokenizeError {
	cp := *e
	cp.column = column
	return &cp
}

func New(kind Kind, err error) *TokenizeError {
	return &TokenizeError{kind: kind, err: err}
}

func Newf(kind Kind, format string, args ...interface{}) *TokenizeError {
	return &TokenizeError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first TokenizeError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var te *TokenizeError
	if errors.As(err, &te) {
		return te.kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
