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

package eval

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTestRatio = 0.2
	DefaultSplitSeed = 42
	DefaultMaxRows   = 5_000_000
)

type Axis string

const (
	AxisRows Axis = "rows"
	AxisCPU  Axis = "cpu"
)

// FitBounds limit records used for refitting threshold coefficients.
// All the intervals are open except for MaxCPU which is inclusive.
type FitBounds struct {
	MinRows int64   `json:"minRows"`
	MaxRows int64   `json:"maxRows"`
	MinCPU  float64 `json:"minCpu"`
	MaxCPU  float64 `json:"maxCpu"`
}

func DefaultFitBounds() FitBounds {
	return FitBounds{
		MinRows: 0,
		MaxRows: DefaultMaxRows,
		MinCPU:  0,
		MaxCPU:  100,
	}
}

// ----------------------------

// Dataset is a labeled feature matrix. Rows of X, Y and Records
// correspond to each other and follow the order of the input records.
type Dataset struct {
	FeatureNames []string
	Rule         rule.Rule
	X            [][]float64
	Y            []int
	Records      []feats.MetricRecord
}

func (ds Dataset) Len() int {
	return len(ds.Y)
}

func (ds Dataset) Positives() int {
	var ans int
	for _, v := range ds.Y {
		if v == 1 {
			ans++
		}
	}
	return ans
}

func (ds Dataset) subset(idxs []int) Dataset {
	ans := Dataset{
		FeatureNames: ds.FeatureNames,
		Rule:         ds.Rule,
		X:            make([][]float64, len(idxs)),
		Y:            make([]int, len(idxs)),
		Records:      make([]feats.MetricRecord, len(idxs)),
	}
	for i, idx := range idxs {
		ans.X[i] = ds.X[idx]
		ans.Y[i] = ds.Y[idx]
		ans.Records[i] = ds.Records[idx]
	}
	return ans
}

// Split partitions the dataset into disjoint train and test parts.
// The partitioning is fully determined by the seed. Both parts keep
// the original relative order of rows.
func (ds Dataset) Split(testRatio float64, seed uint64) (train, test Dataset) {
	if testRatio < 0 {
		testRatio = 0
	}
	if testRatio > 1 {
		testRatio = 1
	}
	n := ds.Len()
	numTest := int(math.Round(float64(n) * testRatio))
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	isTest := make([]bool, n)
	for _, idx := range perm[:numTest] {
		isTest[idx] = true
	}
	trainIdxs := make([]int, 0, n-numTest)
	testIdxs := make([]int, 0, numTest)
	for i := range n {
		if isTest[i] {
			testIdxs = append(testIdxs, i)

		} else {
			trainIdxs = append(trainIdxs, i)
		}
	}
	return ds.subset(trainIdxs), ds.subset(testIdxs)
}

// ----------------------------

// DatasetBuilder turns metric records into labeled training data.
type DatasetBuilder struct {
	FeatureNames []string
	Rule         rule.Rule
	Bounds       FitBounds

	// TrainingFilter removes records with zero rows or elapsed time and
	// with a negative CPU value before labeling.
	TrainingFilter bool
}

func NewDatasetBuilder(featureNames []string, labelingRule rule.Rule, bounds FitBounds) (*DatasetBuilder, error) {
	if err := CheckFeatureNames(featureNames); err != nil {
		return nil, fmt.Errorf("failed to create dataset builder: %w", err)
	}
	if err := labelingRule.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create dataset builder: %w", err)
	}
	return &DatasetBuilder{
		FeatureNames: slices.Clone(featureNames),
		Rule:         labelingRule,
		Bounds:       bounds,
	}, nil
}

func (b *DatasetBuilder) passesTrainingFilter(rec feats.MetricRecord) bool {
	return rec.Rows() > 0 && rec.Elapsed() > 0 && rec.CPU() >= 0
}

// FitSubset returns (x, elapsed_time) pairs suitable for refitting
// the threshold of the specified axis. Records with missing values
// of the respective metrics are not used.
func (b *DatasetBuilder) FitSubset(records []feats.MetricRecord, axis Axis) (xs, ys []float64) {
	for _, rec := range records {
		if rec.ElapsedTime == nil || *rec.ElapsedTime <= 0 {
			continue
		}
		switch axis {
		case AxisRows:
			if rec.RowsProcessed == nil {
				continue
			}
			rows := *rec.RowsProcessed
			if rows > b.Bounds.MinRows && rows < b.Bounds.MaxRows {
				xs = append(xs, float64(rows))
				ys = append(ys, *rec.ElapsedTime)
			}
		case AxisCPU:
			if rec.CPUPercent == nil {
				continue
			}
			cpu := *rec.CPUPercent
			if cpu > b.Bounds.MinCPU && cpu <= b.Bounds.MaxCPU {
				xs = append(xs, cpu)
				ys = append(ys, *rec.ElapsedTime)
			}
		}
	}
	return
}

// Build validates, default-fills and labels the records. Malformed
// records are not included in the result, they are returned
// as a list of errors instead.
func (b *DatasetBuilder) Build(records []feats.MetricRecord) (Dataset, []error) {
	ans := Dataset{
		FeatureNames: slices.Clone(b.FeatureNames),
		Rule:         b.Rule,
		X:            make([][]float64, 0, len(records)),
		Y:            make([]int, 0, len(records)),
		Records:      make([]feats.MetricRecord, 0, len(records)),
	}
	var problems []error
	var numFiltered int
	for _, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			problems = append(problems, err)
			continue
		}
		filled := rec.Filled()
		if b.TrainingFilter && !b.passesTrainingFilter(filled) {
			numFiltered++
			continue
		}
		vec, err := feats.Vector(filled, b.FeatureNames)
		if err != nil {
			problems = append(problems, fmt.Errorf("failed to vectorize record %s: %w", rec.UniqKey(), err))
			continue
		}
		filled.Incident = b.Rule.Label(filled)
		filled.Cause = Attribute(filled, b.Rule)
		ans.X = append(ans.X, vec)
		ans.Y = append(ans.Y, filled.Incident)
		ans.Records = append(ans.Records, filled)
	}
	for _, p := range problems {
		var mErr *MalformedRecordError
		if errors.As(p, &mErr) {
			log.Warn().Err(p).Msg("dropping malformed record")

		} else {
			log.Warn().Err(p).Msg("dropping record")
		}
	}
	log.Debug().
		Int("numInput", len(records)).
		Int("numRows", ans.Len()).
		Int("numPositive", ans.Positives()).
		Int("numFiltered", numFiltered).
		Int("numDropped", len(problems)).
		Msg("built dataset")
	return ans, problems
}
