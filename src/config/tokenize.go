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
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/samber/lo"
)

const (
	DEFAULT_BATCH_SIZE   = 25
	MAX_BATCH_SIZE       = 1000
	DEFAULT_VAULT_FIELD  = "pii_values"
	DEFAULT_HTTP_TIMEOUT = 30 * time.Second
	DEFAULT_MAX_ATTEMPTS = 3
	DEFAULT_RETRY_WAIT   = 2 * time.Second

	SNOWFLAKE  = "snowflake"
	POSTGRESQL = "postgresql"
	MYSQL      = "mysql"
	SQLITE     = "sqlite"
)

var SupportedWarehouseTypes = []string{SNOWFLAKE, POSTGRESQL, MYSQL, SQLITE}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// VaultConfig is everything needed to reach the tokenization vault.
type VaultConfig struct {
	URL      string // https://host or bare host
	VaultID  string
	Table    string // vault table the values are inserted into
	Field    string // column of the vault table that receives each value
	PATToken string

	BatchSize    int
	Timeout      time.Duration // per HTTP attempt
	MaxAttempts  int
	RetryWaitMin time.Duration
}

func (c *VaultConfig) ApplyDefaults() {
	if c.Field == "" {
		c.Field = DEFAULT_VAULT_FIELD
	}
	if c.BatchSize == 0 {
		c.BatchSize = DEFAULT_BATCH_SIZE
	}
	if c.Timeout == 0 {
		c.Timeout = DEFAULT_HTTP_TIMEOUT
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DEFAULT_MAX_ATTEMPTS
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = DEFAULT_RETRY_WAIT
	}
}

// BaseURL returns the vault URL with an https scheme when none was given.
func (c *VaultConfig) BaseURL() string {
	u := strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

func (c *VaultConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "vault-url")
	}
	if c.VaultID == "" {
		missing = append(missing, "vault-id")
	}
	if c.Table == "" {
		missing = append(missing, "vault-table")
	}
	if c.PATToken == "" {
		missing = append(missing, "vault-pat-token")
	}
	if len(missing) > 0 {
		return goerrors.Errorf("missing required vault configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := url.ParseRequestURI(c.BaseURL()); err != nil {
		return goerrors.Errorf("invalid vault url %q: %v", c.URL, err)
	}
	if c.BatchSize < 1 || c.BatchSize > MAX_BATCH_SIZE {
		return goerrors.Errorf("batch size must be between 1 and %d, got %d", MAX_BATCH_SIZE, c.BatchSize)
	}
	if c.MaxAttempts < 1 {
		return goerrors.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// WarehouseConfig describes the SQL connection. DSN wins over the individual
// Snowflake fields when both are set.
type WarehouseConfig struct {
	Type string
	DSN  string

	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
	Role      string
}

func (c *WarehouseConfig) Validate() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if !lo.Contains(SupportedWarehouseTypes, c.Type) {
		return goerrors.Errorf("invalid warehouse type %q. Supported types = %v", c.Type, SupportedWarehouseTypes)
	}
	if c.DSN != "" {
		return nil
	}
	if c.Type != SNOWFLAKE {
		return goerrors.Errorf("warehouse-dsn is required for warehouse type %q", c.Type)
	}
	var missing []string
	for name, v := range map[string]string{
		"warehouse-account":  c.Account,
		"warehouse-user":     c.User,
		"warehouse-password": c.Password,
		"warehouse-database": c.Database,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		return goerrors.Errorf("missing required snowflake configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TokenizeConfig names the table and columns of one run.
type TokenizeConfig struct {
	SourceTable      string   // [db.][schema.]table
	KeyColumn        string   // primary identifier, unique per row
	OrderBy          []string // tiebreak columns after KeyColumn
	SensitiveColumns []string

	ParallelBatches  int
	Resume           bool
	CleanupOnFailure bool
}

func (c *TokenizeConfig) Validate() error {
	if c.SourceTable == "" {
		return goerrors.Errorf("source table is required")
	}
	for _, part := range strings.Split(c.SourceTable, ".") {
		if !identifierRegex.MatchString(part) {
			return goerrors.Errorf("invalid source table %q: %q is not a plain identifier", c.SourceTable, part)
		}
	}
	if c.KeyColumn == "" {
		return goerrors.Errorf("key column is required")
	}
	if len(c.SensitiveColumns) == 0 {
		return goerrors.Errorf("at least one sensitive column is required")
	}
	all := append(append([]string{c.KeyColumn}, c.OrderBy...), c.SensitiveColumns...)
	for _, col := range all {
		if !identifierRegex.MatchString(col) {
			return goerrors.Errorf("invalid column name %q", col)
		}
	}
	if dups := lo.FindDuplicates(lo.Map(c.SensitiveColumns, func(s string, _ int) string { return strings.ToLower(s) })); len(dups) > 0 {
		return goerrors.Errorf("sensitive columns listed more than once: %v", dups)
	}
	if lo.ContainsBy(c.SensitiveColumns, func(s string) bool { return strings.EqualFold(s, c.KeyColumn) }) {
		return goerrors.Errorf("key column %q cannot also be a sensitive column", c.KeyColumn)
	}
	if c.ParallelBatches == 0 {
		c.ParallelBatches = 1
	}
	if c.ParallelBatches < 0 {
		return goerrors.Errorf("parallel batches must be positive, got %d", c.ParallelBatches)
	}
	return nil
}

func (c *TokenizeConfig) String() string {
	return fmt.Sprintf("table=%s key=%s order-by=%v sensitive=%v", c.SourceTable, c.KeyColumn, c.OrderBy, c.SensitiveColumns)
}
