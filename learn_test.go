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

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/eval/xg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func learnTestRule() rule.Rule {
	return rule.Rule{
		Rows: &rule.Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1.5},
		CPU:  &rule.Threshold{Slope: -3.06, Intercept: 250.51, Multiplier: 1.5},
	}
}

func learnTestData(t *testing.T) (train, test eval.Dataset) {
	b, err := eval.NewDatasetBuilder(feats.DefaultFeatureNames, learnTestRule(), eval.DefaultFitBounds())
	require.NoError(t, err)
	records := make([]feats.MetricRecord, 300)
	for i := range records {
		records[i] = feats.MetricRecord{
			QueryID:       fmt.Sprintf("q%03d", i),
			SourceFile:    "awr_learn.html",
			ElapsedTime:   feats.Float(float64(i*3 + 1)),
			RowsProcessed: feats.Int(int64(i*1000 + 1)),
			CPUPercent:    feats.Float(float64(i % 100)),
		}
	}
	ds, errs := b.Build(records)
	require.Empty(t, errs)
	return ds.Split(eval.DefaultTestRatio, eval.DefaultSplitSeed)
}

func TestTrainAndTestExportOnlyModel(t *testing.T) {
	train, test := learnTestData(t)
	mlModel, err := modload.NewMLModel(modload.ModelTypeXG, 0, 0.5, learnTestRule())
	require.NoError(t, err)
	datasetFile := filepath.Join(t.TempDir(), "awr.records.json")

	var res learnResult
	assert.NotPanics(t, func() {
		res, err = trainAndTest(
			context.Background(), eval.NewPredictor(mlModel), learnTestRule(), train, test, datasetFile, nil)
	})
	require.NoError(t, err)
	assert.True(t, res.InferenceOnly)
	assert.Nil(t, res.TestPredictions)
	assert.FileExists(t, res.ModelPath)
	assert.FileExists(t, xg.MetadataFilePath(res.ModelPath))
}

func TestTrainAndTestRandomForest(t *testing.T) {
	train, test := learnTestData(t)
	mlModel, err := modload.NewMLModel(modload.ModelTypeRF, 20, 0.5, learnTestRule())
	require.NoError(t, err)
	datasetFile := filepath.Join(t.TempDir(), "awr.records.json")

	res, err := trainAndTest(
		context.Background(), eval.NewPredictor(mlModel), learnTestRule(), train, test, datasetFile, nil)
	require.NoError(t, err)
	assert.False(t, res.InferenceOnly)
	assert.Len(t, res.TestPredictions, test.Len())
	assert.Greater(t, res.Accuracy, 0.8)
	assert.FileExists(t, res.ModelPath)
}
