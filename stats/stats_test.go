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
	"context"
	"path/filepath"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "awr.sqlite"))
	require.NoError(t, err)
	require.NoError(t, db.Init())
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecords() []feats.MetricRecord {
	return []feats.MetricRecord{
		{
			QueryID: "b1", SourceFile: "awr_2.html", ElapsedTime: feats.Float(1.5),
			RowsProcessed: feats.Int(10), CPUPercent: feats.Float(20), QueryText: "SELECT 1 FROM dual",
		},
		{QueryID: "a1", SourceFile: "awr_1.html", ElapsedTime: feats.Float(700)},
		{
			QueryID: "a2", SourceFile: "awr_1.html", ElapsedTime: feats.Float(3),
			RowsProcessed: feats.Int(0), CPUPercent: feats.Float(0),
		},
	}
}

func TestInitIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Init())
	ex, err := db.tableExists("training_records")
	require.NoError(t, err)
	assert.True(t, ex)
}

func TestAddAndGetRecords(t *testing.T) {
	db := openTestDB(t)
	n, err := db.AddRecords(context.Background(), testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// reimport must not duplicate
	_, err = db.AddRecords(context.Background(), testRecords())
	require.NoError(t, err)

	recs, err := db.GetMetricRecords(ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a1", recs[0].QueryID)
	assert.Nil(t, recs[0].RowsProcessed)
	assert.Nil(t, recs[0].CPUPercent)
	assert.Equal(t, 700.0, recs[0].Elapsed())
	assert.Equal(t, int64(0), *recs[1].RowsProcessed)
	assert.Equal(t, "SELECT 1 FROM dual", recs[2].QueryText)

	recs, err = db.GetMetricRecords(ListFilter{}.SetSourceFile("awr_2.html"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestTrainingExclusion(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AddRecords(context.Background(), testRecords())
	require.NoError(t, err)
	n, err := db.SetTrainingExclude("awr_1.html", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recs, err := db.GetAllRecords(ListFilter{}.SetTrainingExcluded(true))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, v := range recs {
		assert.True(t, v.TrainingExclude)
	}
	recs, err = db.GetAllRecords(ListFilter{}.SetTrainingExcluded(false))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestTrainingRun(t *testing.T) {
	db := openTestDB(t)
	records := testRecords()
	_, err := db.AddRecords(context.Background(), records)
	require.NoError(t, err)
	r := rule.Rule{Rows: &rule.Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1.5}}

	id, err := db.CreateNewTraining(Training{
		ModelType:      "rf",
		ModelPath:      "/tmp/awr.model.rf.json",
		Rule:           r,
		ClassThreshold: 0.5,
		Accuracy:       0.97,
		NumTrain:       2,
		NumTest:        1,
	})
	require.NoError(t, err)
	tr, err := db.GetTraining(id)
	require.NoError(t, err)
	assert.True(t, tr.Rule.Equal(r))
	assert.Equal(t, 0.97, tr.Accuracy)
	assert.Equal(t, "rf", tr.ModelType)

	records[1].Incident = 1
	require.NoError(t, db.SetTrainingRecords(context.Background(), id, records[:2], false, nil))
	require.NoError(t, db.SetTrainingRecords(context.Background(), id, records[2:], true, []int{1}))
	assert.Error(t, db.SetTrainingRecords(context.Background(), id, records[2:], true, []int{1, 0}))

	res, err := db.GetTrainingValidationData(id)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a2", res[0].QueryID)
	assert.Equal(t, 1, res[0].Prediction)
	assert.Equal(t, 0, res[0].Truth)
	assert.True(t, res[0].IsValidation)

	_, err = db.GetTraining("nonexistent")
	assert.Error(t, err)
}

func TestTopRecords(t *testing.T) {
	best := NewTopRecords(3)
	best.TryAdd(feats.MetricRecord{QueryID: "a"}, 5)
	best.TryAdd(feats.MetricRecord{QueryID: "b"}, 9)
	best.TryAdd(feats.MetricRecord{QueryID: "c"}, 8)
	assert.False(t, best.TryAdd(feats.MetricRecord{QueryID: "d"}, 4))
	assert.True(t, best.TryAdd(feats.MetricRecord{QueryID: "e"}, 8.5))
	require.Equal(t, 3, best.Len())
	assert.Equal(t, "b", best.At(0).Record.QueryID)
	assert.Equal(t, "e", best.At(1).Record.QueryID)
	assert.Equal(t, "c", best.At(2).Record.QueryID)
}
