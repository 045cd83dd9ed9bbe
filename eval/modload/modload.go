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
	"errors"
	"fmt"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/rf"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/eval/xg"
	"github.com/Anasbourzik7/awrdetect/eval/zero"
)

const (
	ModelTypeRF   = "rf"
	ModelTypeXG   = "xg"
	ModelTypeZero = "zero"
)

var ErrNoSuchModel = errors.New("no such model")

// GetMLModel loads a persisted model of the specified type.
func GetMLModel(modelType, modelPath string) (eval.MLModel, error) {

	var mlModel eval.MLModel
	var err error

	switch modelType {
	case ModelTypeRF:
		mlModel, err = rf.LoadFromFile(modelPath)
	case ModelTypeXG:
		mlModel, err = xg.LoadFromFile(modelPath)
	default:
		err = fmt.Errorf("%w: %s", ErrNoSuchModel, modelType)
	}
	return mlModel, err
}

// NewMLModel creates an untrained model of the specified type.
// The `zero` model is accepted for evaluation purposes only and it
// uses the provided rule.
func NewMLModel(modelType string, numTrees int, classThreshold float64, labelingRule rule.Rule) (eval.MLModel, error) {
	switch modelType {
	case ModelTypeRF:
		return rf.NewModel(numTrees, classThreshold), nil
	case ModelTypeXG:
		m := xg.NewModel()
		m.SetClassThreshold(classThreshold)
		return m, nil
	case ModelTypeZero:
		return zero.NewZeroModel(labelingRule), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchModel, modelType)
}

// LoadClassifier loads a model and wraps it into a read-only
// classifier handle. If classThreshold is positive, it overrides
// the one stored with the model.
func LoadClassifier(modelType, modelPath string, classThreshold float64) (*eval.Classifier, error) {
	model, err := GetMLModel(modelType, modelPath)
	if err != nil {
		return nil, err
	}
	if classThreshold > 0 {
		model.SetClassThreshold(classThreshold)
	}
	clf, err := eval.NewClassifier(model)
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: modelPath, Err: err}
	}
	return clf, nil
}
