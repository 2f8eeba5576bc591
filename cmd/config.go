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
package cmd

import (
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	// Flag name prefixes (used in CLI flags)
	WarehouseFlagPrefix = "warehouse-"
	VaultFlagPrefix     = "vault-"

	// Config key prefixes (used in config file keys)
	WarehouseConfigPrefix = "warehouse."
	VaultConfigPrefix     = "vault."
	TokenizeConfigPrefix  = "tokenize."
)

var allowedGlobalConfigKeys = mapset.NewThreadUnsafeSet[string](
	"work-dir", "log-level", "env-file",
)

var allowedWarehouseConfigKeys = mapset.NewThreadUnsafeSet[string](
	"type", "dsn", "account", "user", "password", "name", "database", "schema", "role",
)

var allowedVaultConfigKeys = mapset.NewThreadUnsafeSet[string](
	"url", "id", "table", "field", "pat-token", "timeout", "max-attempts",
)

var allowedTokenizeConfigKeys = mapset.NewThreadUnsafeSet[string](
	"source-table", "key-column", "order-by", "sensitive-columns", "batch-size",
	"parallel-batches", "resume", "cleanup-on-failure", "disable-pb",
	"report-bucket-url", "report-prefix", "start-metrics-server", "metrics-port",
)

var allowedVerifyConfigKeys = mapset.NewThreadUnsafeSet[string](
	"source-table", "sample-size",
)

var allowedCleanupConfigKeys = mapset.NewThreadUnsafeSet[string](
	"source-table",
)

var allowedConfigSections = map[string]mapset.Set[string]{
	"warehouse": allowedWarehouseConfigKeys,
	"vault":     allowedVaultConfigKeys,
	"tokenize":  allowedTokenizeConfigKeys,
	"verify":    allowedVerifyConfigKeys,
	"cleanup":   allowedCleanupConfigKeys,
}

// Flags of other commands that fall back to the tokenize section, so one
// config file serves tokenize, verify and cleanup of the same table.
var sharedTokenizeFlags = mapset.NewThreadUnsafeSet[string]("source-table")

// Environment variables consulted, in order, for a flag still unset after
// the command line and the config file. The process environment wins over
// the env file.
var envVarsForFlag = map[string][]string{
	"vault-url":          {"VAULT_URL", "VAULT_HOST"},
	"vault-id":           {"VAULT_ID"},
	"vault-table":        {"VAULT_TABLE"},
	"vault-field":        {"VAULT_TABLE_COLUMN"},
	"vault-pat-token":    {"VAULT_PAT_TOKEN"},
	"batch-size":         {"VAULT_BATCH_SIZE"},
	"warehouse-dsn":      {"VAULTSWAP_WAREHOUSE_DSN"},
	"warehouse-account":  {"SNOWFLAKE_ACCOUNT"},
	"warehouse-user":     {"SNOWFLAKE_USER"},
	"warehouse-password": {"SNOWFLAKE_PASSWORD"},
	"warehouse-name":     {"SNOWFLAKE_WAREHOUSE"},
	"warehouse-database": {"SNOWFLAKE_DATABASE"},
	"warehouse-schema":   {"SNOWFLAKE_SCHEMA"},
	"warehouse-role":     {"SNOWFLAKE_ROLE"},
}

// ConfigFlagOverride records a flag whose value came from the config file or
// the environment rather than the command line.
type ConfigFlagOverride struct {
	FlagName  string
	ConfigKey string
	Value     string
}

/*
initConfig loads the config file of the command, if any, validates its keys
and copies its values into the flags the user did not set on the command line.

	Config file lookup order: --config-file, $VAULTSWAP_CONFIG_FILE,
	$HOME/vaultswap-config.yaml. A missing default file is not an error.
*/
func initConfig(cmd *cobra.Command) ([]ConfigFlagOverride, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if os.Getenv("VAULTSWAP_CONFIG_FILE") != "" {
		v.SetConfigFile(os.Getenv("VAULTSWAP_CONFIG_FILE"))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.SetConfigName("vaultswap-config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err := validateConfigFile(v)
	if err != nil {
		return nil, err
	}

	overrides, err := bindCobraFlagsToViper(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("failed to bind cobra flags to viper: %w", err)
	}
	return overrides, nil
}

// validateConfigFile reports every unknown global key, unknown section and
// unknown key inside a known section before failing.
func validateConfigFile(v *viper.Viper) error {
	invalidGlobalKeys := mapset.NewThreadUnsafeSet[string]()
	invalidSectionKeys := make(map[string]mapset.Set[string])
	invalidSections := mapset.NewThreadUnsafeSet[string]()

	for _, key := range v.AllKeys() {
		parts := strings.Split(key, ".")
		if len(parts) == 1 {
			if !allowedGlobalConfigKeys.Contains(key) {
				invalidGlobalKeys.Add(key)
			}
			continue
		}
		section := parts[0]
		nestedKey := strings.Join(parts[1:], ".")
		allowedKeys, ok := allowedConfigSections[section]
		if !ok {
			invalidSections.Add(section)
			continue
		}
		if !allowedKeys.Contains(nestedKey) {
			if _, exists := invalidSectionKeys[section]; !exists {
				invalidSectionKeys[section] = mapset.NewThreadUnsafeSet[string]()
			}
			invalidSectionKeys[section].Add(nestedKey)
		}
	}

	if invalidGlobalKeys.Cardinality() == 0 && len(invalidSectionKeys) == 0 && invalidSections.Cardinality() == 0 {
		return nil
	}
	if invalidGlobalKeys.Cardinality() > 0 {
		fmt.Printf("%s [%s]\n", color.RedString("Invalid global config keys:"), strings.Join(invalidGlobalKeys.ToSlice(), ", "))
	}
	for section, keys := range invalidSectionKeys {
		fmt.Printf("%s [%s]\n", color.RedString(fmt.Sprintf("Invalid keys in section '%s':", section)), strings.Join(keys.ToSlice(), ", "))
	}
	if invalidSections.Cardinality() > 0 {
		fmt.Printf("%s [%s]\n", color.RedString("Invalid sections:"), strings.Join(invalidSections.ToSlice(), ", "))
	}
	return fmt.Errorf("found invalid configurations in config file: %s", v.ConfigFileUsed())
}

/*
bindCobraFlagsToViper sets every flag not given on the command line from the
first config key found among:

	<command>.<flag>
	<flag> (global)
	warehouse.<flag without "warehouse-"> / vault.<flag without "vault-">
	tokenize.<flag> for flags shared with the tokenize command
*/
func bindCobraFlagsToViper(cmd *cobra.Command, v *viper.Viper) ([]ConfigFlagOverride, error) {
	var bindErr error
	var overrides []ConfigFlagOverride

	subCmdPath := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name())
	subCmdPath = strings.TrimSpace(subCmdPath)
	configKeyPrefix := strings.ReplaceAll(subCmdPath, " ", "-")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		key, ok := configKeyForFlag(v, configKeyPrefix, f.Name)
		if !ok {
			return
		}
		val := configValue(v, key)
		if err := cmd.Flags().Set(f.Name, val); err != nil {
			bindErr = fmt.Errorf("config key %q: %w", key, err)
			return
		}
		overrides = append(overrides, ConfigFlagOverride{FlagName: f.Name, ConfigKey: key, Value: val})
	})
	return overrides, bindErr
}

func configKeyForFlag(v *viper.Viper, configKeyPrefix, flagName string) (string, bool) {
	candidates := []string{}
	if configKeyPrefix != "" {
		candidates = append(candidates, configKeyPrefix+"."+flagName)
	}
	candidates = append(candidates, flagName)
	switch {
	case strings.HasPrefix(flagName, WarehouseFlagPrefix):
		candidates = append(candidates, WarehouseConfigPrefix+strings.TrimPrefix(flagName, WarehouseFlagPrefix))
	case strings.HasPrefix(flagName, VaultFlagPrefix):
		candidates = append(candidates, VaultConfigPrefix+strings.TrimPrefix(flagName, VaultFlagPrefix))
	case sharedTokenizeFlags.Contains(flagName):
		candidates = append(candidates, TokenizeConfigPrefix+flagName)
	}
	for _, key := range candidates {
		if v.IsSet(key) {
			return key, true
		}
	}
	return "", false
}

// configValue renders a config value the way the flag would be typed; YAML
// lists become comma separated.
func configValue(v *viper.Viper, key string) string {
	if _, ok := v.Get(key).([]interface{}); ok {
		return strings.Join(v.GetStringSlice(key), ",")
	}
	return v.GetString(key)
}

// bindEnvFileToFlags fills flags that are still unset from the process
// environment and then from the dotenv file at path. A missing env file is
// only an error when its path was given explicitly.
func bindEnvFileToFlags(cmd *cobra.Command, path string) ([]ConfigFlagOverride, error) {
	fileEnv, err := readEnvFile(path, cmd.Flags().Changed("env-file"))
	if err != nil {
		return nil, err
	}

	var bindErr error
	var overrides []ConfigFlagOverride
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		for _, name := range envVarsForFlag[f.Name] {
			val := strings.TrimSpace(os.Getenv(name))
			if val == "" {
				val = strings.TrimSpace(fileEnv[name])
			}
			if val == "" {
				continue
			}
			if err := cmd.Flags().Set(f.Name, val); err != nil {
				bindErr = fmt.Errorf("environment variable %s: %w", name, err)
				return
			}
			overrides = append(overrides, ConfigFlagOverride{FlagName: f.Name, ConfigKey: "env " + name, Value: val})
			return
		}
	})
	return overrides, bindErr
}

func readEnvFile(path string, explicit bool) (gotenv.Env, error) {
	if path == "" {
		return gotenv.Env{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return gotenv.Env{}, nil
		}
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()
	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	return env, nil
}
