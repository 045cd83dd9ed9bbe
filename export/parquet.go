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

package export

import (
	"fmt"
	"io"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/parquet-go/parquet-go"
)

// ParquetRecord is a flat row of a detection result.
type ParquetRecord struct {
	RunID         string    `parquet:"run_id,snappy"`
	Created       time.Time `parquet:"created,snappy"`
	SourceFile    string    `parquet:"awr_file,snappy"`
	QueryID       string    `parquet:"query_id,snappy"`
	ElapsedTime   *float64  `parquet:"elapsed_time,optional,snappy"`
	RowsProcessed *int64    `parquet:"rows_processed,optional,snappy"`
	CPUPercent    *float64  `parquet:"cpu_percent,optional,snappy"`
	Incident      int32     `parquet:"incident,snappy"`
	Cause         string    `parquet:"cause,snappy"`
	QueryText     string    `parquet:"query_text,snappy"`
}

func toParquetRecords(det eval.Detection, opts Options) []ParquetRecord {
	recs := opts.records(det)
	ans := make([]ParquetRecord, len(recs))
	for i, rec := range recs {
		ans[i] = ParquetRecord{
			RunID:         det.RunID,
			Created:       det.Created,
			SourceFile:    rec.SourceFile,
			QueryID:       rec.QueryID,
			ElapsedTime:   rec.ElapsedTime,
			RowsProcessed: rec.RowsProcessed,
			CPUPercent:    rec.CPUPercent,
			Incident:      int32(rec.Incident),
			Cause:         string(rec.Cause),
			QueryText:     rec.QueryText,
		}
	}
	return ans
}

func writeParquet(w io.Writer, det eval.Detection, opts Options) error {
	writer := parquet.NewGenericWriter[ParquetRecord](w)
	if _, err := writer.Write(toParquetRecords(det, opts)); err != nil {
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
