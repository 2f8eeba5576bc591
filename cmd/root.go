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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/vaultswap/vaultswap/src/config"
	"github.com/vaultswap/vaultswap/src/utils"
)

var (
	cfgFile   string
	envFile   string
	workDir   string
	lockFile  lockfile.Lockfile
	locked    bool
	startTime time.Time
)

var rootCmd = &cobra.Command{
	Use:   "vaultswap",
	Short: "Replace the sensitive columns of a warehouse table with vault tokens.",
	Long: `vaultswap snapshots the rows of a table that carry sensitive values, exchanges
those values for tokens with a tokenization vault, rebuilds the table with the
tokens in place and atomically swaps the rebuilt table in for the original.`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Blocking work of the commands stops when ctx is cancelled.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	cobra.CheckErr(err)
}

func init() {
	// Hooks are assigned here rather than in the rootCmd literal to avoid an
	// initialization cycle through isWorkDirRequired.
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		startTime = time.Now()
		overrides, err := initConfig(cmd)
		if err != nil {
			utils.ErrExit("ERROR: %v", err)
		}
		envOverrides, err := bindEnvFileToFlags(cmd, envFile)
		if err != nil {
			utils.ErrExit("ERROR: %v", err)
		}
		if err := config.ValidateLogLevel(); err != nil {
			utils.ErrExit("ERROR: %v", err)
		}
		if isWorkDirRequired(cmd) {
			validateWorkDirFlag()
			lockWorkDir()
			InitLogging(workDir, false, cmd.Name())
		} else {
			InitLogging(workDir, true, cmd.Name())
		}
		setLogLevel()
		for _, o := range append(overrides, envOverrides...) {
			log.Infof("flag %q set from %s", o.FlagName, o.ConfigKey)
		}
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		unlockWorkDir()
		if isWorkDirRequired(cmd) {
			log.Infof("%s completed in %s", cmd.CommandPath(), time.Since(startTime).Round(time.Millisecond))
		}
	}

	registerCommonGlobalFlags(rootCmd)
}

func registerCommonGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", ".",
		"work directory that keeps the logs, run reports and the lock of a vaultswap run")

	cmd.PersistentFlags().StringVarP(&config.LogLevel, "log-level", "l", config.INFO,
		fmt.Sprintf("log level for the log file. One of %v", []string{config.TRACE, config.DEBUG, config.INFO, config.WARN, config.ERROR, config.FATAL, config.PANIC}))

	cmd.PersistentFlags().BoolVarP(&utils.DoNotPrompt, "yes", "y", false,
		"assume answer as yes for all questions (default false)")

	cmd.PersistentFlags().StringVarP(&cfgFile, "config-file", "c", "",
		"path to a YAML config file (default $HOME/vaultswap-config.yaml, or $VAULTSWAP_CONFIG_FILE)")

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env.local",
		"path to a dotenv file providing VAULT_* and SNOWFLAKE_* variables")
}

func isWorkDirRequired(cmd *cobra.Command) bool {
	return cmd.Name() != versionCmd.Name() && cmd != rootCmd
}

func setLogLevel() {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		utils.ErrExit("ERROR: %v", err)
	}
	log.SetLevel(level)
}

func validateWorkDirFlag() {
	if workDir == "" {
		utils.ErrExit(`ERROR: required flag "work-dir" not set`)
	}
	if !utils.FileOrFolderExists(workDir) {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			utils.ErrExit("failed to create work-dir %q: %v", workDir, err)
		}
	} else if workDir != "." {
		workDir = strings.TrimRight(workDir, "/")
	}
}

func lockWorkDir() {
	lockFilePath, err := filepath.Abs(filepath.Join(workDir, ".vaultswap.lck"))
	if err != nil {
		utils.ErrExit("Failed to get absolute path for lockfile: %v", err)
	}
	createLock(lockFilePath)
}

func createLock(lockFileName string) {
	var err error
	lockFile, err = lockfile.New(lockFileName)
	if err != nil {
		utils.ErrExit("Failed to create lockfile %q: %v", lockFileName, err)
	}

	err = lockFile.TryLock()
	if err == nil {
		locked = true
		atexit.Register(func() {
			if locked {
				_ = lockFile.Unlock()
			}
		})
		return
	} else if err == lockfile.ErrBusy {
		utils.ErrExit("Another instance of vaultswap is running in the work-dir = %s", workDir)
	} else {
		utils.ErrExit("Unable to lock the work-dir: %v", err)
	}
}

func unlockWorkDir() {
	if !locked {
		return
	}
	err := lockFile.Unlock()
	if err != nil {
		utils.ErrExit("Unable to unlock %q: %v", lockFile, err)
	}
	locked = false
}
