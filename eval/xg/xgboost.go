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

package xg

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/modutils"
	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/dmitryikh/leaves"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Metadata is stored alongside an externally trained model. Besides
// training parameters, it carries the ordered feature names and the
// labeling rule the training data were produced with.
type Metadata struct {
	FeatureNames    []string  `json:"feature_names"`
	Rule            rule.Rule `json:"rule"`
	Objective       string    `json:"objective,omitempty"`
	Metric          [2]string `json:"metric"`
	ScalePosWeight  float64   `json:"scale_pos_weight,omitempty"`
	MaxDepth        int       `json:"max_depth,omitempty"`
	LearningRate    float64   `json:"learning_rate,omitempty"`
	NumLeaves       int       `json:"num_leaves,omitempty"`
	NumEstimators   int       `json:"n_estimators,omitempty"`
	Subsample       float64   `json:"subsample,omitempty"`
	ColsampleBytree float64   `json:"colsample_bytree,omitempty"`
	RandomState     int       `json:"random_state"`
}

// TrainingData is the msgpack export consumed by an external
// gradient boosting trainer.
type TrainingData struct {
	Features     [][]float64 `msgpack:"features"`
	Label        []int       `msgpack:"label"`
	FeatureNames []string    `msgpack:"feature_names"`
	Rule         rule.Rule   `msgpack:"rule"`
}

// Model is an inference-only gradient boosted trees model. Learning
// is performed by an external program (XGBoost or LightGBM), here
// we just export the training data.
type Model struct {
	ClassThreshold float64
	trainData      TrainingData
	ensemble       *leaves.Ensemble
	metadata       Metadata
}

func (m *Model) IsInferenceOnly() bool {
	return true
}

func (m *Model) CreateModelFileName(datasetFile string) string {
	return modutils.ExtractModelNameBase(datasetFile) + ".feats.xg.msgpack"
}

func (m *Model) Train(ctx context.Context, ds eval.Dataset, comment string) error {
	if err := eval.CheckTrainingLabels(ds.Y); err != nil {
		return fmt.Errorf("failed to prepare XG training data: %w", err)
	}
	xData := make([][]float64, 0, ds.Len())
	for i, row := range ds.X {
		if i%100 == 0 && ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		xData = append(xData, slices.Clone(row))
	}
	m.trainData = TrainingData{
		Features:     xData,
		Label:        slices.Clone(ds.Y),
		FeatureNames: slices.Clone(ds.FeatureNames),
		Rule:         ds.Rule,
	}
	m.metadata.FeatureNames = m.trainData.FeatureNames
	m.metadata.Rule = ds.Rule
	return nil
}

// IsReady tells whether a trained ensemble has been loaded. A model
// which has just exported its training data cannot predict.
func (m *Model) IsReady() bool {
	return m.ensemble != nil
}

// PredictRow never reports an incident if no ensemble is loaded.
func (m *Model) PredictRow(row []float64) predict.Prediction {
	if m.ensemble == nil {
		return predict.Prediction{Votes: []float64{1, 0}}
	}
	pred := m.ensemble.PredictSingle(row, 0)
	var ans int
	if pred > m.ClassThreshold {
		ans = 1
	}
	return predict.Prediction{
		Votes:          []float64{1 - pred, pred},
		PredictedClass: ans,
	}
}

func (m *Model) FeatureNames() []string {
	return m.metadata.FeatureNames
}

func (m *Model) LabelingRule() rule.Rule {
	return m.metadata.Rule
}

func (m *Model) SetClassThreshold(v float64) {
	m.ClassThreshold = v
}

func (m *Model) GetClassThreshold() float64 {
	return m.ClassThreshold
}

// SaveToFile exports training data for an external trainer. A metadata
// file with feature names and labeling rule is created next to it
// so it can be shipped along with the trained model.
func (m *Model) SaveToFile(filePath string) error {
	if len(m.trainData.Label) == 0 {
		return fmt.Errorf("failed to create XGBoost training data: model has no training data")
	}
	outData, err := msgpack.Marshal(m.trainData)
	if err != nil {
		return fmt.Errorf("failed to create XGBoost training data: %w", err)
	}
	if err := os.WriteFile(filePath, outData, 0644); err != nil {
		return fmt.Errorf("failed to create XGBoost training data: %w", err)
	}
	mt, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create XGBoost model metadata: %w", err)
	}
	if err := os.WriteFile(MetadataFilePath(filePath), mt, 0644); err != nil {
		return fmt.Errorf("failed to create XGBoost model metadata: %w", err)
	}
	return nil
}

func (m *Model) GetInfo() string {
	return fmt.Sprintf(
		"XGBoost model, metric: %s / %s, NL: %d, SPV: %.2f, LR: %.2f, features: %s",
		m.metadata.Metric[0],
		m.metadata.Metric[1],
		m.metadata.NumLeaves,
		m.metadata.ScalePosWeight,
		m.metadata.LearningRate,
		strings.Join(m.metadata.FeatureNames, ", "),
	)
}

// MetadataFilePath derives metadata file path from a model file path
// (e.g. awr.xg.txt.gz -> awr.xg.metadata.json)
func MetadataFilePath(modelPath string) string {
	if modutils.IsGzipPath(modelPath) {
		modelPath = modelPath[:len(modelPath)-len(filepath.Ext(modelPath))]
	}
	ext := filepath.Ext(modelPath)
	return modelPath[:len(modelPath)-len(ext)] + ".metadata.json"
}

func loadMetadata(modelPath string) (Metadata, error) {
	var mt Metadata
	metadataFilePath := MetadataFilePath(modelPath)
	isFile, err := fs.IsFile(metadataFilePath)
	if err != nil {
		return mt, fmt.Errorf("failed to load XG model metadata: %w", err)
	}
	if !isFile {
		return mt, fmt.Errorf("failed to load XG model metadata: file %s not found", metadataFilePath)
	}
	data, err := os.ReadFile(metadataFilePath)
	if err != nil {
		return mt, fmt.Errorf("failed to load XG model metadata: %w", err)
	}
	if err := json.Unmarshal(data, &mt); err != nil {
		return mt, fmt.Errorf("failed to load XG model metadata: %w", err)
	}
	if err := eval.CheckFeatureNames(mt.FeatureNames); err != nil {
		return mt, fmt.Errorf("failed to load XG model metadata: %w", err)
	}
	if err := mt.Rule.Validate(); err != nil {
		return mt, fmt.Errorf("failed to load XG model metadata: %w", err)
	}
	return mt, nil
}

// LoadFromFile loads a trained ensemble. Files with the `.txt` extension
// (optionally gzipped) are read as LightGBM text models, anything else
// as XGBoost binary models. The metadata file is required.
func LoadFromFile(filePath string) (*Model, error) {
	metadata, err := loadMetadata(filePath)
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	defer file.Close()

	var reader io.Reader = file
	plainPath := filePath
	if modutils.IsGzipPath(filePath) {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, &eval.ClassifierLoadError{Path: filePath, Err: fmt.Errorf("failed to create gzip reader: %w", err)}
		}
		defer gzReader.Close()
		reader = gzReader
		plainPath = filePath[:len(filePath)-len(filepath.Ext(filePath))]
	}

	var model *leaves.Ensemble
	if strings.ToLower(filepath.Ext(plainPath)) == ".txt" {
		model, err = leaves.LGEnsembleFromReader(bufio.NewReader(reader), true)

	} else {
		model, err = leaves.XGEnsembleFromReader(bufio.NewReader(reader), true)
	}
	if err != nil {
		return nil, &eval.ClassifierLoadError{Path: filePath, Err: err}
	}
	if model.NFeatures() != len(metadata.FeatureNames) {
		return nil, &eval.ClassifierLoadError{
			Path: filePath,
			Err: fmt.Errorf(
				"model expects %d features, metadata lists %d", model.NFeatures(), len(metadata.FeatureNames)),
		}
	}
	log.Debug().
		Str("path", filePath).
		Int("numEstimators", model.NEstimators()).
		Msg("loaded XG model")
	return &Model{ensemble: model, metadata: metadata, ClassThreshold: 0.5}, nil
}

func NewModel() *Model {
	return &Model{
		ClassThreshold: 0.5,
	}
}
