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
	"slices"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/rs/zerolog/log"
)

// ErrModelNotReady is returned when wrapping a model which cannot
// predict yet (e.g. an inference-only model with no trained ensemble).
var ErrModelNotReady = errors.New("model is not ready for inference")

// readinessReporter is implemented by models which may exist
// in a state not suitable for inference.
type readinessReporter interface {
	IsReady() bool
}

// Classifier is a read-only handle of a trained model used
// for inference. It is safe to be shared by concurrent requests
// as long as nobody keeps a reference to the wrapped model.
type Classifier struct {
	model        MLModel
	featureNames []string
	rule         rule.Rule
}

// NewClassifier wraps a trained model. The model's feature names
// must be known to the record schema, otherwise FeatureMismatchError
// is returned.
func NewClassifier(model MLModel) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("failed to create classifier: no model")
	}
	if rr, ok := model.(readinessReporter); ok && !rr.IsReady() {
		return nil, fmt.Errorf("failed to create classifier: %w", ErrModelNotReady)
	}
	names := slices.Clone(model.FeatureNames())
	if err := CheckFeatureNames(names); err != nil {
		return nil, err
	}
	r := model.LabelingRule()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create classifier: model contains invalid labeling rule: %w", err)
	}
	return &Classifier{
		model:        model,
		featureNames: names,
		rule:         r,
	}, nil
}

func (c *Classifier) FeatureNames() []string {
	return slices.Clone(c.featureNames)
}

// Rule returns the labeling rule the model was trained with.
func (c *Classifier) Rule() rule.Rule {
	return c.rule
}

func (c *Classifier) Info() string {
	return c.model.GetInfo()
}

func (c *Classifier) ClassThreshold() float64 {
	return c.model.GetClassThreshold()
}

// Predictions classifies records. Columns missing in a record
// are filled with zero (a warning is logged), columns the model
// does not know are ignored. Records must be valid (see ValidateRecord).
func (c *Classifier) Predictions(records []feats.MetricRecord) ([]predict.Prediction, error) {
	ans := make([]predict.Prediction, len(records))
	missing := make(map[string]int)
	for i, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			return nil, err
		}
		for _, m := range rec.MissingFields() {
			if slices.Contains(c.featureNames, m) {
				missing[m]++
			}
		}
		row, err := feats.Vector(rec.Filled(), c.featureNames)
		if err != nil {
			return nil, fmt.Errorf("failed to vectorize record %s: %w", rec.UniqKey(), err)
		}
		ans[i] = c.model.PredictRow(row)
	}
	if len(missing) > 0 {
		ev := log.Warn()
		for name, cnt := range missing {
			ev = ev.Int(name, cnt)
		}
		ev.Msg("some records lack model columns, filled with zero")
	}
	return ans, nil
}

// Predict returns 0/1 label for each record.
func (c *Classifier) Predict(records []feats.MetricRecord) ([]int, error) {
	preds, err := c.Predictions(records)
	if err != nil {
		return nil, err
	}
	ans := make([]int, len(preds))
	for i, p := range preds {
		ans[i] = p.PredictedClass
	}
	return ans, nil
}

// Score calculates accuracy of the classifier against the dataset labels.
func (c *Classifier) Score(ds Dataset) (float64, error) {
	if ds.Len() == 0 {
		return 0, fmt.Errorf("failed to score classifier: empty dataset")
	}
	labels, err := c.Predict(ds.Records)
	if err != nil {
		return 0, fmt.Errorf("failed to score classifier: %w", err)
	}
	var numCorrect int
	for i, v := range labels {
		if v == ds.Y[i] {
			numCorrect++
		}
	}
	return float64(numCorrect) / float64(ds.Len()), nil
}
