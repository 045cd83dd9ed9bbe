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

package cnf

import (
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsProduceReferenceRule(t *testing.T) {
	conf, err := ParseConfig([]byte(`{"model": {"path": "m.rf.json"}}`))
	require.NoError(t, err)
	require.NoError(t, ValidateAndDefaults(conf))

	r := conf.Thresholds.LabelingRule()
	require.NotNil(t, r.Rows)
	require.NotNil(t, r.CPU)
	assert.InDelta(t, 2.78e-4, r.Rows.Slope, 1e-12)
	assert.InDelta(t, 106.40, r.Rows.Intercept, 1e-9)
	assert.InDelta(t, -3.06, r.CPU.Slope, 1e-9)
	assert.InDelta(t, 250.51, r.CPU.Intercept, 1e-9)
	assert.Equal(t, 1.5, r.CPU.Multiplier)
	assert.Equal(t, eval.DefaultTestRatio, conf.Training.TestRatio)
	assert.Equal(t, uint64(eval.DefaultSplitSeed), conf.Training.SplitSeed())
	assert.Equal(t, stats.DriverSQLite, conf.Store.Driver)
	assert.Equal(t, "rf", conf.Model.Type)
	assert.Equal(t, 0.0, conf.Model.VoteThreshold)
	assert.Equal(t, 0.5, conf.Model.TrainingVoteThreshold())
}

func TestExplicitVoteThresholdIsKept(t *testing.T) {
	conf, err := ParseConfig([]byte(`{"model": {"path": "m.rf.json", "voteThreshold": 0.7}}`))
	require.NoError(t, err)
	require.NoError(t, ValidateAndDefaults(conf))
	assert.Equal(t, 0.7, conf.Model.VoteThreshold)
	assert.Equal(t, 0.7, conf.Model.TrainingVoteThreshold())
}

func TestExplicitZeroCoefficientIsKept(t *testing.T) {
	conf, err := ParseConfig([]byte(`{
		"thresholds": {
			"rows": {"slope": 0, "intercept": 100, "multiplier": 2},
			"cpu": {"disabled": true}
		}
	}`))
	require.NoError(t, err)
	require.NoError(t, ValidateAndDefaults(conf))
	r := conf.Thresholds.LabelingRule()
	assert.Nil(t, r.CPU)
	require.NotNil(t, r.Rows)
	assert.Equal(t, 0.0, r.Rows.Slope)
	assert.Equal(t, 200.0, r.Rows.At(1_000_000))
	rec := feats.MetricRecord{ElapsedTime: feats.Float(201)}
	assert.Equal(t, 1, r.Label(rec))
}

func TestAllThresholdsDisabled(t *testing.T) {
	conf, err := ParseConfig([]byte(`{
		"thresholds": {"rows": {"disabled": true}, "cpu": {"disabled": true}}
	}`))
	require.NoError(t, err)
	assert.Error(t, ValidateAndDefaults(conf))
}

func TestInvalidValues(t *testing.T) {
	for _, data := range []string{
		`{"model": {"type": "nn"}}`,
		`{"model": {"voteThreshold": 1.5}}`,
		`{"training": {"testRatio": 1}}`,
		`{"training": {"minRows": 10, "maxRows": 5}}`,
		`{"thresholds": {"rows": {"multiplier": -1}}}`,
	} {
		conf, err := ParseConfig([]byte(data))
		require.NoError(t, err)
		assert.Error(t, ValidateAndDefaults(conf), data)
	}
}

func TestStoreOpenUnknownDriver(t *testing.T) {
	_, err := StoreConf{Driver: "postgres"}.Open()
	assert.Error(t, err)
}
