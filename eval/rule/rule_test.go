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

package rule

import (
	"math"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsThreshold() *Threshold {
	return &Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1.5}
}

func cpuThreshold() *Threshold {
	return &Threshold{Slope: -3.06, Intercept: 250.51, Multiplier: 1.5}
}

func record(elapsed float64, rows int64, cpu float64) feats.MetricRecord {
	return feats.MetricRecord{
		QueryID:       "4ztz048yfq32s",
		ElapsedTime:   feats.Float(elapsed),
		RowsProcessed: feats.Int(rows),
		CPUPercent:    feats.Float(cpu),
	}
}

func TestThresholdAt(t *testing.T) {
	assert.InDelta(t, 576.6, rowsThreshold().At(1_000_000), 1e-9)
	assert.InDelta(t, 329.865, cpuThreshold().At(10), 1e-9)
	assert.InDelta(t, 375.765, cpuThreshold().At(0), 1e-9)
}

func TestThresholdIsScaledRawLine(t *testing.T) {
	base := Threshold{Slope: 2.78e-4, Intercept: 106.40, Multiplier: 1}
	for _, x := range []float64{-1000, 0, 0.5, 10, 1_000_000, 7e9} {
		for _, m := range []float64{0.5, 1, 1.5, 3} {
			th := base
			th.Multiplier = m
			assert.InDelta(t, base.Raw(x)*m, th.At(x), 1e-6)
		}
	}
	doubled := *rowsThreshold()
	doubled.Multiplier *= 2
	assert.InDelta(t, 2*rowsThreshold().At(42), doubled.At(42), 1e-9)
}

func TestThresholdValidate(t *testing.T) {
	assert.NoError(t, rowsThreshold().Validate())
	assert.NoError(t, cpuThreshold().Validate())
	assert.Error(t, Threshold{Slope: 1, Intercept: 1, Multiplier: 0}.Validate())
	assert.Error(t, Threshold{Slope: 1, Intercept: 1, Multiplier: -1}.Validate())
}

func TestRowsOnlyNotExceeded(t *testing.T) {
	r := Rule{Rows: rowsThreshold()}
	rec := record(500, 1_000_000, 10)
	assert.False(t, r.Violations(rec).Rows)
	assert.Equal(t, 0, r.Label(rec))
}

func TestCPUThresholdExceeded(t *testing.T) {
	r := Rule{Rows: rowsThreshold(), CPU: cpuThreshold()}
	rec := record(500, 1_000_000, 10)
	v := r.Violations(rec)
	assert.False(t, v.Rows)
	assert.True(t, v.CPU)
	assert.Equal(t, 1, r.Label(rec))
}

func TestMissingCPUIsFilledWithZero(t *testing.T) {
	r := Rule{CPU: cpuThreshold()}
	rec := record(375.0, 1, 0)
	rec.CPUPercent = nil
	assert.Equal(t, 0, r.Label(rec))
	rec.ElapsedTime = feats.Float(375.77)
	assert.Equal(t, 1, r.Label(rec))
}

func TestLabelBoundaryIsStrict(t *testing.T) {
	r := Rule{Rows: &Threshold{Slope: 0, Intercept: 100, Multiplier: 1}}
	assert.Equal(t, 0, r.Label(record(100, 5, 0)))
	assert.Equal(t, 1, r.Label(record(100.0001, 5, 0)))
}

func TestRuleValidate(t *testing.T) {
	assert.Error(t, Rule{}.Validate())
	assert.NoError(t, Rule{CPU: cpuThreshold()}.Validate())
	assert.Error(t, Rule{Rows: &Threshold{Multiplier: 0}}.Validate())
}

func TestRuleEqual(t *testing.T) {
	a := Rule{Rows: rowsThreshold(), CPU: cpuThreshold()}
	b := Rule{Rows: rowsThreshold(), CPU: cpuThreshold()}
	assert.True(t, a.Equal(b))
	b.CPU.Multiplier = 1.6
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Rule{Rows: rowsThreshold()}))
	assert.True(t, Rule{}.Equal(Rule{}))
}

func TestFitRecoversLine(t *testing.T) {
	xs := []float64{1000, 20000, 350000, 1200000, 4000000}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2.78e-4*x + 106.40
	}
	th, fs, err := Fit(xs, ys, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.78e-4, th.Slope, 1e-10)
	assert.InDelta(t, 106.40, th.Intercept, 1e-6)
	assert.Equal(t, 1.5, th.Multiplier)
	assert.Equal(t, 5, fs.NumPoints)
	assert.InDelta(t, 1.0, fs.RSquared, 1e-9)
}

func TestFitNegativeSlope(t *testing.T) {
	xs := []float64{5, 10, 20, 40, 80}
	ys := []float64{235.21, 219.91, 189.31, 128.11, 5.71}
	th, _, err := Fit(xs, ys, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, -3.06, th.Slope, 1e-6)
	assert.InDelta(t, 250.51, th.Intercept, 1e-6)
}

func TestFitDegenerateInput(t *testing.T) {
	_, _, err := Fit([]float64{1}, []float64{1}, 1.5)
	assert.Error(t, err)
	_, _, err = Fit([]float64{3, 3, 3}, []float64{1, 2, 3}, 1.5)
	assert.Error(t, err)
	_, _, err = Fit([]float64{1, 2}, []float64{1}, 1.5)
	assert.Error(t, err)
}

func TestExcess(t *testing.T) {
	r := Rule{Rows: rowsThreshold(), CPU: cpuThreshold()}
	rec := record(500, 1_000_000, 10)
	assert.InDelta(t, 500-329.865, r.Excess(rec), 1e-9)
	assert.True(t, math.IsInf(Rule{}.Excess(rec), -1))
}
