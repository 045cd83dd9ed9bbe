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

package zero

import (
	"context"
	"fmt"
	"slices"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
)

// ZeroModel is a baseline classifier which never reports an incident.
// It is useful for comparing a trained model with the majority class
// accuracy and for testing clients.
type ZeroModel struct {
	Features       []string
	Rule           rule.Rule
	ClassThreshold float64
}

func NewZeroModel(labelingRule rule.Rule) *ZeroModel {
	return &ZeroModel{
		Features:       slices.Clone(feats.DefaultFeatureNames),
		Rule:           labelingRule,
		ClassThreshold: 0.5,
	}
}

func (zm *ZeroModel) Train(ctx context.Context, ds eval.Dataset, comment string) error {
	return fmt.Errorf("cannot train zero model")
}

func (zm *ZeroModel) PredictRow(row []float64) predict.Prediction {
	return predict.Prediction{
		Votes:          []float64{1, 0},
		PredictedClass: 0,
	}
}

func (zm *ZeroModel) FeatureNames() []string {
	return zm.Features
}

func (zm *ZeroModel) LabelingRule() rule.Rule {
	return zm.Rule
}

func (zm *ZeroModel) SetClassThreshold(v float64) {
	zm.ClassThreshold = v
}

func (zm *ZeroModel) GetClassThreshold() float64 {
	return zm.ClassThreshold
}

func (zm *ZeroModel) SaveToFile(string) error {
	return fmt.Errorf("cannot save zero model")
}

func (zm *ZeroModel) GetInfo() string {
	return "ZeroModel"
}

func (zm *ZeroModel) IsInferenceOnly() bool {
	return true
}

func (zm *ZeroModel) CreateModelFileName(datasetFile string) string {
	return "zero-model"
}
