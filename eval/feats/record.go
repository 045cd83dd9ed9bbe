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

package feats

import (
	"encoding/json"
	"fmt"
)

const (
	FeatElapsedTime   = "elapsed_time"
	FeatRowsProcessed = "rows_processed"
	FeatCPUPercent    = "cpu_percent"
)

// DefaultFeatureNames is the ordered list of columns a classifier is trained
// on unless configured otherwise.
var DefaultFeatureNames = []string{FeatElapsedTime, FeatRowsProcessed, FeatCPUPercent}

// Cause explains which threshold(s) an incident violates.
type Cause string

const (
	CauseNone        Cause = "none"
	CauseRows        Cause = "rows"
	CauseCPU         Cause = "cpu"
	CauseRowsAndCPU  Cause = "rows+cpu"
	CauseUnexplained Cause = "unexplained"
)

// MetricRecord is one SQL statement observation taken from a single AWR report.
//
// The numeric metrics are pointers so we can tell "not present in the report"
// from an observed zero. Anything consuming the values should go through
// Filled() or the accessors which apply the zero default-fill.
type MetricRecord struct {
	QueryID       string   `json:"query_id" msgpack:"query_id"`
	SourceFile    string   `json:"awr_file" msgpack:"awr_file"`
	ElapsedTime   *float64 `json:"elapsed_time" msgpack:"elapsed_time"`
	RowsProcessed *int64   `json:"rows_processed" msgpack:"rows_processed"`
	CPUPercent    *float64 `json:"cpu_percent" msgpack:"cpu_percent"`
	QueryText     string   `json:"query_text" msgpack:"query_text"`

	// Incident and Cause are derived fields. They are set either from
	// the labeling rule (training) or by the classifier and cause attribution
	// (inference).
	Incident int   `json:"incident" msgpack:"incident"`
	Cause    Cause `json:"cause,omitempty" msgpack:"cause,omitempty"`
}

// UnmarshalJSON accepts also the `source_file` alias used by some exports
func (rec *MetricRecord) UnmarshalJSON(data []byte) error {
	type plain MetricRecord
	var tmp struct {
		plain
		SourceFileAlias string `json:"source_file"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*rec = MetricRecord(tmp.plain)
	if rec.SourceFile == "" {
		rec.SourceFile = tmp.SourceFileAlias
	}
	return nil
}

func (rec MetricRecord) Elapsed() float64 {
	if rec.ElapsedTime == nil {
		return 0
	}
	return *rec.ElapsedTime
}

func (rec MetricRecord) Rows() int64 {
	if rec.RowsProcessed == nil {
		return 0
	}
	return *rec.RowsProcessed
}

func (rec MetricRecord) CPU() float64 {
	if rec.CPUPercent == nil {
		return 0
	}
	return *rec.CPUPercent
}

// Filled returns a copy of the record with all missing metrics set to zero.
func (rec MetricRecord) Filled() MetricRecord {
	ans := rec
	ans.ElapsedTime = Float(rec.Elapsed())
	ans.RowsProcessed = Int(rec.Rows())
	ans.CPUPercent = Float(rec.CPU())
	return ans
}

// MissingFields lists metrics not present in the record
func (rec MetricRecord) MissingFields() []string {
	var ans []string
	if rec.ElapsedTime == nil {
		ans = append(ans, FeatElapsedTime)
	}
	if rec.RowsProcessed == nil {
		ans = append(ans, FeatRowsProcessed)
	}
	if rec.CPUPercent == nil {
		ans = append(ans, FeatCPUPercent)
	}
	return ans
}

// UniqKey identifies the record within a set of reports. The query_id
// alone is not unique across reports.
func (rec MetricRecord) UniqKey() string {
	return fmt.Sprintf("%s/%s", rec.SourceFile, rec.QueryID)
}

// Value returns a feature value by its column name (after default-fill).
// The second value is false for an unknown column.
func (rec MetricRecord) Value(name string) (float64, bool) {
	switch name {
	case FeatElapsedTime:
		return rec.Elapsed(), true
	case FeatRowsProcessed:
		return float64(rec.Rows()), true
	case FeatCPUPercent:
		return rec.CPU(), true
	}
	return 0, false
}

// Vector builds the ordered feature vector for the provided column names.
func Vector(rec MetricRecord, names []string) ([]float64, error) {
	ans := make([]float64, len(names))
	for i, name := range names {
		v, ok := rec.Value(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature column '%s'", name)
		}
		ans[i] = v
	}
	return ans, nil
}

func Float(v float64) *float64 {
	return &v
}

func Int(v int64) *int64 {
	return &v
}
