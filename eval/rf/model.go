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

package rf

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/modutils"
	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	randomforest "github.com/malaschitz/randomForest"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNumTrees        = 100
	DefaultVotingThreshold = 0.5
)

type jsonizedRFModel struct {
	Forest          *storedForest   `json:"forest"`
	NumTrees        int             `json:"numTrees"`
	VotingThreshold float64         `json:"votingThreshold"`
	FeatureNames    []string        `json:"featureNames"`
	Rule            rule.Rule       `json:"rule"`
	Comment         string          `json:"comment"`
}

// Model wraps a Random Forest classifier of incidents
type Model struct {
	Forest          *randomforest.Forest
	NumTrees        int
	VotingThreshold float64
	Features        []string
	Rule            rule.Rule
	Comment         string
}

// NewModel creates a new untrained Random Forest model
func NewModel(numTrees int, votingThreshold float64) *Model {
	return &Model{
		Forest:          &randomforest.Forest{},
		NumTrees:        numTrees,
		VotingThreshold: votingThreshold,
	}
}

func (m *Model) IsInferenceOnly() bool {
	return false
}

func (m *Model) CreateModelFileName(datasetFile string) string {
	return modutils.ExtractModelNameBase(datasetFile) + ".model.rf.json"
}

func (m *Model) GetClassThreshold() float64 {
	return m.VotingThreshold
}

func (m *Model) SetClassThreshold(v float64) {
	m.VotingThreshold = v
}

func (m *Model) FeatureNames() []string {
	return m.Features
}

func (m *Model) LabelingRule() rule.Rule {
	return m.Rule
}

func (m *Model) GetInfo() string {
	return fmt.Sprintf(
		"RF model, num. trees: %d, voting threshold: %.2f, features: %s",
		m.NumTrees, m.VotingThreshold, strings.Join(m.Features, ", "),
	)
}

// Train trains the random forest on a labeled dataset.
// note: the `comment` argument will be stored with the model for easier model review
func (m *Model) Train(ctx context.Context, ds eval.Dataset, comment string) error {
	if err := eval.CheckTrainingLabels(ds.Y); err != nil {
		return fmt.Errorf("failed to train RF model: %w", err)
	}
	if m.NumTrees <= 0 {
		return fmt.Errorf("failed to train RF model - invalid value of NumTrees")
	}
	if err := ds.Rule.Validate(); err != nil {
		return fmt.Errorf("failed to train RF model: %w", err)
	}
	xData := make([][]float64, 0, ds.Len())
	for i, row := range ds.X {
		if i%100 == 0 && ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		xData = append(xData, slices.Clone(row))
	}
	log.Debug().
		Int("numPositive", ds.Positives()).
		Int("dataSize", ds.Len()).
		Int("numTrees", m.NumTrees).
		Msg("prepared training vectors")

	if m.Forest == nil {
		m.Forest = &randomforest.Forest{}
	}
	m.Forest.Data = randomforest.ForestData{
		X:     xData,
		Class: slices.Clone(ds.Y),
	}
	m.Forest.Train(m.NumTrees)
	m.Features = slices.Clone(ds.FeatureNames)
	m.Rule = ds.Rule
	m.Comment = comment
	return nil
}

// PredictRow classifies a feature vector using the trained forest
func (m *Model) PredictRow(row []float64) predict.Prediction {
	votes := m.Forest.Vote(row)
	var ans int
	if len(votes) > 1 && votes[1] > m.VotingThreshold {
		ans = 1
	}
	return predict.Prediction{
		Votes:          votes,
		PredictedClass: ans,
	}
}

// SaveToFile saves the RF model to a file. In case the path
// ends with `.gz`, the data are gzipped.
func (m *Model) SaveToFile(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to save RF model to a file: %w", err)
	}
	defer file.Close()

	tmpModel := jsonizedRFModel{
		NumTrees:        m.NumTrees,
		VotingThreshold: m.VotingThreshold,
		FeatureNames:    m.Features,
		Rule:            m.Rule,
		Comment:         m.Comment,
	}

	if m.Forest != nil {
		sf := newStoredForest(m.Forest)
		tmpModel.Forest = &sf
	}

	bytes, err := json.Marshal(tmpModel)
	if err != nil {
		return fmt.Errorf("failed to save RF model to a file: %w", err)
	}

	var writer io.Writer = file
	if modutils.IsGzipPath(filePath) {
		gzWriter := gzip.NewWriter(file)
		defer gzWriter.Close()
		writer = gzWriter
	}
	if _, err := writer.Write(bytes); err != nil {
		return fmt.Errorf("failed to save RF model to a file: %w", err)
	}
	return nil
}

// LoadFromFile loads a model previously stored via SaveToFile.
// Any failure is reported as *eval.ClassifierLoadError.
func LoadFromFile(filePath string) (*Model, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	defer file.Close()

	var reader io.Reader = file
	if modutils.IsGzipPath(filePath) {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, &eval.ClassifierLoadError{Path: filePath, Err: fmt.Errorf("failed to create gzip reader: %w", err)}
		}
		defer gzReader.Close()
		reader = gzReader
	}

	var tmpModel jsonizedRFModel
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	if err := json.Unmarshal(data, &tmpModel); err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	if tmpModel.Forest == nil || len(tmpModel.Forest.Trees) == 0 {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: fmt.Errorf("no forest data found")}
	}
	if err := eval.CheckFeatureNames(tmpModel.FeatureNames); err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	if err := tmpModel.Rule.Validate(); err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}

	forest, err := tmpModel.Forest.toForest()
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	numTrees := tmpModel.NumTrees
	if numTrees == 0 {
		numTrees = forest.NTrees
	}
	return &Model{
		Forest:          forest,
		NumTrees:        numTrees,
		VotingThreshold: tmpModel.VotingThreshold,
		Features:        tmpModel.FeatureNames,
		Rule:            tmpModel.Rule,
		Comment:         tmpModel.Comment,
	}, nil
}
