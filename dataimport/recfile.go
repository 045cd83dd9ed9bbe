// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataimport

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modutils"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/vmihailenco/msgpack/v5"
)

func isMsgpackPath(path string) bool {
	if modutils.IsGzipPath(path) {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return strings.ToLower(filepath.Ext(path)) == ".msgpack"
}

// IsRecordsPath tells whether the path looks like a records file
// (i.e. not an AWR report or a directory with reports).
func IsRecordsPath(path string) bool {
	if isMsgpackPath(path) {
		return true
	}
	if modutils.IsGzipPath(path) {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// ReadRecords reads a record file. Supported are JSON arrays (compatible
// with the Data.json export) and msgpack files. Both can be gzipped.
func ReadRecords(path string) ([]feats.MetricRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer file.Close()
	var reader io.Reader = file
	if modutils.IsGzipPath(path) {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}
	var ans []feats.MetricRecord
	if isMsgpackPath(path) {
		if err := msgpack.NewDecoder(reader).Decode(&ans); err != nil {
			return nil, fmt.Errorf("failed to decode records from %s: %w", path, err)
		}

	} else {
		if err := json.NewDecoder(reader).Decode(&ans); err != nil {
			return nil, fmt.Errorf("failed to decode records from %s: %w", path, err)
		}
	}
	return ans, nil
}

// WriteRecords stores records to a file, the format is
// determined by the file extension the same way as in ReadRecords.
func WriteRecords(path string, records []feats.MetricRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	defer file.Close()
	var writer io.Writer = file
	if modutils.IsGzipPath(path) {
		gzWriter := gzip.NewWriter(file)
		defer gzWriter.Close()
		writer = gzWriter
	}
	if isMsgpackPath(path) {
		err = msgpack.NewEncoder(writer).Encode(records)

	} else {
		enc := json.NewEncoder(writer)
		enc.SetIndent("", "    ")
		err = enc.Encode(records)
	}
	if err != nil {
		return fmt.Errorf("failed to write records to %s: %w", path, err)
	}
	return nil
}

// ListReports returns AWR report files (*.html, *.htm) in a directory
// sorted by name. In case the path is a file, it is returned as is.
func ListReports(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list AWR reports: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list AWR reports: %w", err)
	}
	var ans []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".html" || ext == ".htm") {
			ans = append(ans, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(ans)
	return ans, nil
}

// ImportReports extracts records from all the reports found in `path`
// (a directory or a single file). A report which cannot be processed
// is logged and skipped.
func ImportReports(ctx context.Context, path string, showProgress bool) ([]Report, error) {
	files, err := ListReports(path)
	if err != nil {
		return nil, err
	}
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(files)), "extracting AWR reports")
	}
	ans := make([]Report, 0, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			log.Warn().Msg("interrupting AWR reports processing")
			return ans, ctx.Err()
		default:
		}
		rep, err := ParseReportFile(f)
		if bar != nil {
			bar.Add(1)
		}
		if err != nil {
			log.Error().Err(err).Str("file", f).Msg("failed to process AWR report, skipping")
			continue
		}
		log.Debug().
			Str("file", f).
			Int("numRecords", len(rep.Records)).
			Int("numProblems", len(rep.Problems)).
			Msg("processed AWR report")
		ans = append(ans, rep)
	}
	return ans, nil
}

// AllRecords concatenates records of the reports
func AllRecords(reports []Report) []feats.MetricRecord {
	var ans []feats.MetricRecord
	for _, r := range reports {
		ans = append(ans, r.Records...)
	}
	return ans
}
