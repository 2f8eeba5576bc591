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
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/vaultswap/vaultswap/src/tokenize"
	"github.com/vaultswap/vaultswap/src/utils/jsonfile"
)

// RunReport is the JSON document written after every tokenize run.
type RunReport struct {
	*tokenize.Result
	Error         string `json:"error,omitempty"`
	Warehouse     string `json:"warehouse"`
	BatchSize     int    `json:"batch_size"`
	Hostname      string `json:"hostname"`
	ToolVersion   string `json:"tool_version"`
	ReportWritten string `json:"report_written_at"`
}

func NewRunReport(res *tokenize.Result, warehouseType string, batchSize int, version string) *RunReport {
	host, _ := os.Hostname()
	r := &RunReport{
		Result:        res,
		Warehouse:     warehouseType,
		BatchSize:     batchSize,
		Hostname:      host,
		ToolVersion:   version,
		ReportWritten: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// FileName is unique per run: tokenize-<table>-<run id>.json.
func (r *RunReport) FileName() string {
	table := strings.NewReplacer(".", "_", "/", "_").Replace(r.Table)
	return fmt.Sprintf("tokenize-%s-%s.json", table, r.RunID)
}

// Write stores the report under <workDir>/reports and returns its path.
func Write(workDir string, r *RunReport) (string, error) {
	path := filepath.Join(workDir, "reports", r.FileName())
	if err := jsonfile.NewJsonFile[RunReport](path).Create(r); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	log.Infof("run report written to %s", path)
	return path, nil
}

// Upload copies the local report at path into the bucket at bucketURL, e.g.
// s3://bucket?region=us-east-1, gs://bucket, azblob://container or
// file:///dir. The object key is prefix joined with the file name.
func Upload(ctx context.Context, bucketURL, prefix, path string) (string, error) {
	data, err := jsonfile.NewJsonFile[RunReport](path).Bytes()
	if err != nil {
		return "", fmt.Errorf("read run report: %w", err)
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return "", fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	defer bucket.Close()

	key := filepath.Base(path)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	if err := bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("upload run report to %s: %w", bucketURL, err)
	}
	log.Infof("run report uploaded to %s as %s", bucketURL, key)
	return key, nil
}
