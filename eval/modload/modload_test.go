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

package modload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule() rule.Rule {
	return rule.Rule{
		Rows: &rule.Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1.5},
		CPU:  &rule.Threshold{Slope: -3.06, Intercept: 250.51, Multiplier: 1.5},
	}
}

func TestUnknownModelType(t *testing.T) {
	_, err := GetMLModel("nn", "whatever")
	assert.ErrorIs(t, err, ErrNoSuchModel)
	_, err = NewMLModel("huber", 10, 0.5, testRule())
	assert.ErrorIs(t, err, ErrNoSuchModel)
}

func TestLoadClassifierRF(t *testing.T) {
	b, err := eval.NewDatasetBuilder(feats.DefaultFeatureNames, testRule(), eval.DefaultFitBounds())
	require.NoError(t, err)
	records := make([]feats.MetricRecord, 200)
	for i := range records {
		records[i] = feats.MetricRecord{
			QueryID:       fmt.Sprintf("q%d", i),
			ElapsedTime:   feats.Float(float64(i * 5)),
			RowsProcessed: feats.Int(int64(i * 100)),
			CPUPercent:    feats.Float(float64(i % 100)),
		}
	}
	ds, errs := b.Build(records)
	require.Empty(t, errs)

	model, err := NewMLModel(ModelTypeRF, 10, 0.65, testRule())
	require.NoError(t, err)
	require.NoError(t, model.Train(context.Background(), ds, ""))
	path := filepath.Join(t.TempDir(), "awr.model.rf.json")
	require.NoError(t, model.SaveToFile(path))

	clf, err := LoadClassifier(ModelTypeRF, path, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.3, clf.ClassThreshold())

	clf, err = LoadClassifier(ModelTypeRF, path, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.65, clf.ClassThreshold())
	assert.True(t, clf.Rule().Equal(testRule()))

	_, err = LoadClassifier(ModelTypeRF, path+".missing", 0)
	var lErr *eval.ClassifierLoadError
	assert.True(t, errors.As(err, &lErr))
}

func TestZeroModelBaseline(t *testing.T) {
	model, err := NewMLModel(ModelTypeZero, 0, 0.5, testRule())
	require.NoError(t, err)
	clf, err := eval.NewClassifier(model)
	require.NoError(t, err)
	labels, err := clf.Predict([]feats.MetricRecord{
		{QueryID: "a", ElapsedTime: feats.Float(9999)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, labels)
}
