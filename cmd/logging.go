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
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MyFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

var secretFlags = []string{"--vault-pat-token", "--warehouse-password", "--warehouse-dsn"}

func (mf *MyFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	fileName := "?"
	line := 0
	if entry.Caller != nil {
		fileName = filepath.Base(entry.Caller.File)
		line = entry.Caller.Line
	}
	// 2026-03-23 12:16:42 INFO pipeline.go:27 Logging initialised.
	msg := fmt.Sprintf("%s %s %s:%d %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), level,
		fileName, line, entry.Message)
	return []byte(msg), nil
}

// InitLogging sends the logs of cmdName to <workDir>/logs/vaultswap-<cmdName>.log.
func InitLogging(workDir string, disableLogging bool, cmdName string) {
	if disableLogging {
		log.SetOutput(io.Discard)
		return
	}
	logFileName := filepath.Join(workDir, "logs", fmt.Sprintf("vaultswap-%s.log", cmdName))

	logRotator := &lumberjack.Logger{
		Filename:   logFileName,
		MaxSize:    200, // MB
		MaxBackups: 10,
	}
	log.SetOutput(logRotator)

	log.SetReportCaller(true)
	log.SetFormatter(&MyFormatter{})
	log.Info("Logging initialised.")
	log.Infof("Args: %v", redactSecrets(os.Args))
	log.Infof("\n%s", getVersionInfo())
}

// redactSecrets masks the values of secret flags in both the
// "--flag value" and "--flag=value" forms.
func redactSecrets(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i := 0; i < len(redacted); i++ {
		for _, flag := range secretFlags {
			switch {
			case redacted[i] == flag && i+1 < len(redacted):
				redacted[i+1] = "XXX"
				i++
			case strings.HasPrefix(redacted[i], flag+"="):
				redacted[i] = flag + "=XXX"
			}
		}
	}
	return redacted
}
