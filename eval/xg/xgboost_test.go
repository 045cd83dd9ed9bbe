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

package xg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testDataset(t *testing.T) eval.Dataset {
	r := rule.Rule{
		Rows: &rule.Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1.5},
	}
	b, err := eval.NewDatasetBuilder(feats.DefaultFeatureNames, r, eval.DefaultFitBounds())
	require.NoError(t, err)
	ds, errs := b.Build([]feats.MetricRecord{
		{QueryID: "a", ElapsedTime: feats.Float(10), RowsProcessed: feats.Int(100), CPUPercent: feats.Float(3)},
		{QueryID: "b", ElapsedTime: feats.Float(1000), RowsProcessed: feats.Int(100), CPUPercent: feats.Float(90)},
		{QueryID: "c", ElapsedTime: feats.Float(20), RowsProcessed: feats.Int(300)},
	})
	require.Empty(t, errs)
	return ds
}

func TestTrainExportsData(t *testing.T) {
	ds := testDataset(t)
	model := NewModel()
	require.NoError(t, model.Train(context.Background(), ds, ""))
	assert.True(t, model.IsInferenceOnly())

	dir := t.TempDir()
	path := model.CreateModelFileName(filepath.Join(dir, "awr.records.json"))
	assert.Equal(t, filepath.Join(dir, "awr.feats.xg.msgpack"), path)
	require.NoError(t, model.SaveToFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var exported TrainingData
	require.NoError(t, msgpack.Unmarshal(raw, &exported))
	assert.Equal(t, []int{0, 1, 0}, exported.Label)
	assert.Equal(t, feats.DefaultFeatureNames, exported.FeatureNames)
	assert.Equal(t, []float64{20, 300, 0}, exported.Features[2])
	assert.True(t, exported.Rule.Equal(ds.Rule))

	mt, err := loadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, feats.DefaultFeatureNames, mt.FeatureNames)
	assert.True(t, mt.Rule.Equal(ds.Rule))
}

func TestTrainDegenerate(t *testing.T) {
	model := NewModel()
	err := model.Train(context.Background(), eval.Dataset{}, "")
	assert.ErrorIs(t, err, eval.ErrDegenerateTrainingSet)
	assert.Error(t, model.SaveToFile(filepath.Join(t.TempDir(), "x.msgpack")))
}

func TestMetadataFilePath(t *testing.T) {
	assert.Equal(t, "/m/awr.xg.metadata.json", MetadataFilePath("/m/awr.xg.txt"))
	assert.Equal(t, "/m/awr.xg.metadata.json", MetadataFilePath("/m/awr.xg.txt.gz"))
	assert.Equal(t, "/m/awr.metadata.json", MetadataFilePath("/m/awr.model"))
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "awr.xg.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0644))

	_, err := LoadFromFile(path)
	var lErr *eval.ClassifierLoadError
	require.True(t, errors.As(err, &lErr), "missing metadata must be a load error")
	assert.Equal(t, path, lErr.Path)

	ds := testDataset(t)
	model := NewModel()
	require.NoError(t, model.Train(context.Background(), ds, ""))
	require.NoError(t, model.SaveToFile(filepath.Join(dir, "awr.xg.msgpack")))
	require.FileExists(t, filepath.Join(dir, "awr.xg.metadata.json"))

	_, err = LoadFromFile(path)
	assert.True(t, errors.As(err, &lErr), "broken model must be a load error")
}

func TestExportOnlyModelCannotPredict(t *testing.T) {
	ds := testDataset(t)
	model := NewModel()
	require.NoError(t, model.Train(context.Background(), ds, ""))
	assert.False(t, model.IsReady())

	assert.NotPanics(t, func() {
		pred := model.PredictRow(ds.X[1])
		assert.Equal(t, 0, pred.PredictedClass)
	})
	_, err := eval.NewClassifier(model)
	assert.ErrorIs(t, err, eval.ErrModelNotReady)
}
