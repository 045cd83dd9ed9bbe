// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
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

package stats

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
)

// DBRecord is a stored AWR metric record
type DBRecord struct {
	ID string

	feats.MetricRecord

	// TrainingExclude excludes the record from training. Typically, this
	// is for additional validation of the model.
	TrainingExclude bool
}

func (rec DBRecord) nullElapsed() sql.NullFloat64 {
	if rec.ElapsedTime == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *rec.ElapsedTime, Valid: true}
}

func (rec DBRecord) nullRows() sql.NullInt64 {
	if rec.RowsProcessed == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *rec.RowsProcessed, Valid: true}
}

func (rec DBRecord) nullCPU() sql.NullFloat64 {
	if rec.CPUPercent == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *rec.CPUPercent, Valid: true}
}

// IdempotentID creates a record ID stable across repeated imports
// of the same report
func IdempotentID(sourceFile, queryID string) string {
	sum := sha1.New()
	_, err := sum.Write([]byte(sourceFile + "#"))
	if err != nil {
		panic("problem generating hash")
	}
	_, err = sum.Write([]byte(queryID))
	if err != nil {
		panic("problem generating hash")
	}
	return hex.EncodeToString(sum.Sum(nil))
}

// ----

type ListFilter struct {
	SourceFile       *string
	TrainingExcluded *bool
}

func (filter ListFilter) SetSourceFile(v string) ListFilter {
	filter.SourceFile = &v
	return filter
}

func (filter ListFilter) SetTrainingExcluded(v bool) ListFilter {
	filter.TrainingExcluded = &v
	return filter
}
