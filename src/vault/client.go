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
package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/errs"
	"github.com/vaultswap/vaultswap/src/utils"
	"github.com/vaultswap/vaultswap/src/utils/httpclient"
)

// payloads quoted in errors are cut to this many bytes
const MAX_PAYLOAD_IN_ERROR = 200

// Value is one plaintext cell submitted for tokenization.
type Value struct {
	RowID     int64
	Plaintext string
}

// Token is the vault's replacement for the Value with the same RowID.
type Token struct {
	RowID int64
	Value string
}

type insertRecord struct {
	Fields map[string]string `json:"fields"`
}

type insertRequest struct {
	Records      []insertRecord `json:"records"`
	Tokenization bool           `json:"tokenization"`
}

type insertResponse struct {
	Records *[]json.RawMessage `json:"records"`
}

// Client issues batched tokenization requests. It keeps no state between
// calls apart from the underlying connection pool.
type Client struct {
	http      *httpclient.Client
	path      string
	field     string
	batchSize int
}

func NewClient(cfg config.VaultConfig) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	retries := cfg.MaxAttempts - 1
	if retries == 0 {
		// httpclient treats zero as "use the default"
		retries = -1
	}
	hc := httpclient.NewClient(httpclient.Config{
		BaseURL: cfg.BaseURL(),
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.PATToken,
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Timeout:      cfg.Timeout,
		MaxRetries:   retries,
		RetryWaitMin: cfg.RetryWaitMin,
	})
	return &Client{
		http:      hc,
		path:      fmt.Sprintf("/v1/vaults/%s/%s", url.PathEscape(cfg.VaultID), url.PathEscape(cfg.Table)),
		field:     cfg.Field,
		batchSize: cfg.BatchSize,
	}, nil
}

func (c *Client) BatchSize() int {
	return c.batchSize
}

// Tokenize sends values in one request and binds the returned tokens to them
// by position. A response with a different record count is a schema error.
// Values whose record carries an empty token get no Token. column is only used for error attribution and logs.
func (c *Client) Tokenize(ctx context.Context, column string, values []Value) ([]Token, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(values) > c.batchSize {
		return nil, errs.Newf(errs.KindRequest, "batch of %d values exceeds batch size %d", len(values), c.batchSize).WithColumn(column)
	}

	req := insertRequest{Records: make([]insertRecord, len(values)), Tokenization: true}
	for i, v := range values {
		req.Records[i] = insertRecord{Fields: map[string]string{c.field: v.Plaintext}}
	}

	var body []byte
	status, err := c.http.Post(ctx, c.path, req, &body)
	if err != nil {
		return nil, classify(ctx, status, err).WithColumn(column)
	}

	records, perr := c.parseRecords(body)
	if perr != nil {
		return nil, perr.WithColumn(column)
	}
	if len(records) != len(values) {
		// tokens are bound by position, so a missing or extra record shifts every later one
		return nil, errs.Newf(errs.KindSchema, "vault returned %d records for %d values: %s",
			len(records), len(values), utils.Truncate(string(body), MAX_PAYLOAD_IN_ERROR)).WithColumn(column)
	}

	tokens := make([]Token, 0, len(values))
	for i, v := range values {
		d := DecodeRecord(records[i], c.field)
		if d.Shape == ShapeUnrecognized {
			return nil, errs.New(errs.KindSchema, &errs.UnrecognizedShapeError{
				Field:   c.field,
				Payload: utils.Truncate(string(d.Raw), MAX_PAYLOAD_IN_ERROR),
			}).WithColumn(column)
		}
		if !d.Present {
			log.Warnf("vault returned an empty token (shape %s) for row %d of column %q", d.Shape, v.RowID, column)
			continue
		}
		tokens = append(tokens, Token{RowID: v.RowID, Value: d.Token})
	}
	return tokens, nil
}

func (c *Client) parseRecords(body []byte) ([]json.RawMessage, *errs.TokenizeError) {
	var resp insertResponse
	if err := json.Unmarshal(bytes.TrimSpace(body), &resp); err != nil {
		return nil, errs.Newf(errs.KindSchema, "vault response is not JSON: %s", utils.Truncate(string(body), MAX_PAYLOAD_IN_ERROR))
	}
	if resp.Records == nil {
		return nil, errs.Newf(errs.KindSchema, "vault response has no records: %s", utils.Truncate(string(body), MAX_PAYLOAD_IN_ERROR))
	}
	return *resp.Records, nil
}

// classify maps a failed call to an error kind. The retry budget is already
// spent by the time a retryable status gets here.
func classify(ctx context.Context, status int, err error) *errs.TokenizeError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errs.New(errs.KindConnectivity, fmt.Errorf("vault request cancelled: %w", ctxErr))
	}
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return errs.New(errs.KindConnectivity, fmt.Errorf("vault unreachable: %w", err))
	}
	se.Body = utils.Truncate(se.Body, MAX_PAYLOAD_IN_ERROR)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(errs.KindAuth, err)
	case status == http.StatusTooManyRequests:
		return errs.New(errs.KindConnectivity, err)
	case status >= 500 && status != http.StatusNotImplemented:
		return errs.New(errs.KindConnectivity, err)
	default:
		return errs.New(errs.KindRequest, err)
	}
}
