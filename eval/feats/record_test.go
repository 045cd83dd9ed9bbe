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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilledAppliesZeroDefaults(t *testing.T) {
	rec := MetricRecord{QueryID: "a1", ElapsedTime: Float(12.5)}
	filled := rec.Filled()
	require.NotNil(t, filled.RowsProcessed)
	require.NotNil(t, filled.CPUPercent)
	assert.Equal(t, int64(0), *filled.RowsProcessed)
	assert.Equal(t, 0.0, *filled.CPUPercent)
	assert.Equal(t, 12.5, *filled.ElapsedTime)
	assert.Nil(t, rec.RowsProcessed, "original record must stay untouched")
	assert.Equal(t, []string{FeatRowsProcessed, FeatCPUPercent}, rec.MissingFields())
	assert.Empty(t, filled.MissingFields())
}

func TestVectorFollowsNameOrder(t *testing.T) {
	rec := MetricRecord{
		ElapsedTime:   Float(500),
		RowsProcessed: Int(1_000_000),
		CPUPercent:    Float(10),
	}
	v, err := Vector(rec, []string{FeatCPUPercent, FeatElapsedTime, FeatRowsProcessed})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 500, 1_000_000}, v)

	_, err = Vector(rec, []string{FeatElapsedTime, "executions"})
	assert.Error(t, err)
}

func TestJSONCompatibility(t *testing.T) {
	src := `[
		{"query_id": "0w2qpuc6u2zsp", "awr_file": "awr_1.html", "rows_processed": 1200,
		 "elapsed_time": 12.3, "cpu_percent": 97.1, "query_text": "SELECT 1 FROM dual"},
		{"query_id": "1x2", "source_file": "awr_2.html", "elapsed_time": 2}
	]`
	var recs []MetricRecord
	require.NoError(t, json.Unmarshal([]byte(src), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "awr_1.html", recs[0].SourceFile)
	assert.Equal(t, int64(1200), recs[0].Rows())
	assert.Equal(t, 97.1, recs[0].CPU())
	assert.Equal(t, "awr_2.html", recs[1].SourceFile)
	assert.Nil(t, recs[1].CPUPercent)
	assert.Equal(t, "awr_2.html/1x2", recs[1].UniqKey())
}
