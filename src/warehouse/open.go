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
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"github.com/vaultswap/vaultswap/src/config"
)

// Open connects to the warehouse described by cfg and pings it.
func Open(ctx context.Context, cfg config.WarehouseConfig) (*sql.DB, Dialect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	dialect, err := New(cfg.Type)
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	switch cfg.Type {
	case config.SNOWFLAKE:
		dsn, err := snowflakeDSN(cfg)
		if err != nil {
			return nil, nil, err
		}
		db, err = sql.Open("snowflake", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open snowflake connection: %w", err)
		}
	case config.POSTGRESQL:
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgresql connection: %w", err)
		}
	case config.MYSQL:
		mcfg, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		mcfg.MultiStatements = false
		connector, err := mysql.NewConnector(mcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql connection: %w", err)
		}
		db = sql.OpenDB(connector)
	case config.SQLITE:
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to %s warehouse: %w", cfg.Type, err)
	}
	log.Infof("connected to %s warehouse", cfg.Type)
	return db, dialect, nil
}

func snowflakeDSN(cfg config.WarehouseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return "", fmt.Errorf("build snowflake dsn: %w", err)
	}
	return dsn, nil
}
