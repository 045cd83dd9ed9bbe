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

package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

type PrecAndRecall struct {
	Precision float64
	Recall    float64
	FBeta     float64
	Accuracy  float64
}

func (pr PrecAndRecall) CSV(x float64) string {
	return fmt.Sprintf("%.2f;%.4f;%.4f;%.4f;%.4f", x, pr.Precision, pr.Recall, pr.FBeta, pr.Accuracy)
}

// ----------------------------

type LearningDataStats struct {
	NumProcessed int `msgpack:"numProcessed"`
	NumDropped   int `msgpack:"numDropped"`
	NumTrain     int `msgpack:"numTrain"`
	NumTest      int `msgpack:"numTest"`
}

func (stats LearningDataStats) AsComment() string {
	return fmt.Sprintf(
		"source data - total records: %d, dropped: %d, train/test: %d/%d",
		stats.NumProcessed, stats.NumDropped, stats.NumTrain, stats.NumTest,
	)
}

// ----------------------------

// MLModel is a generalization of a tree-ensemble classifier
// flagging incidents in AWR metric records.
type MLModel interface {

	// Train trains the model based on input data. In case the model
	// supports only inference (e.g. our XGBoost), this should just prepare
	// data to a format required by actual program performing the learning.
	// The model must remember feature names and the labeling rule
	// of the dataset.
	Train(ctx context.Context, ds Dataset, comment string) error

	// PredictRow classifies a feature vector ordered by FeatureNames()
	PredictRow(row []float64) predict.Prediction

	FeatureNames() []string

	// LabelingRule returns the rule the training data were labeled with
	LabelingRule() rule.Rule

	SetClassThreshold(v float64)
	GetClassThreshold() float64
	SaveToFile(string) error
	GetInfo() string

	// IsInferenceOnly specifies whether the model also supports
	// training within this program.
	IsInferenceOnly() bool

	// CreateModelFileName should generate proper model filename based
	// on the dataset (i.e. input) file name. This should keep data and
	// model names organized and easy to search through.
	CreateModelFileName(datasetFile string) string
}

// ----------------------------

type misclassifiedRecordReporter interface {
	AddMisclassifiedRecord(ds Dataset, idx int, mlOut, threshold float64)
}

// ----------------------------

// Predictor drives training and evaluation of an MLModel
type Predictor struct {
	mlModel MLModel

	// Evaluations is the data the model is tested on
	Evaluations Dataset

	LearningDataStats LearningDataStats
}

func NewPredictor(mlModel MLModel) *Predictor {
	return &Predictor{
		mlModel: mlModel,
	}
}

func (model *Predictor) Model() MLModel {
	return model.mlModel
}

func (model *Predictor) PrecisionAndRecall(misclassRecords misclassifiedRecordReporter) PrecAndRecall {

	numTruePositives := 0
	numRelevant := 0
	numRetrieved := 0
	numCorrect := 0

	for i := 0; i < model.Evaluations.Len(); i++ {
		trulyIncident := model.Evaluations.Y[i] == 1
		prediction := model.mlModel.PredictRow(model.Evaluations.X[i])
		predictedIncident := prediction.PredictedClass == 1
		if trulyIncident != predictedIncident && misclassRecords != nil {
			misclassRecords.AddMisclassifiedRecord(
				model.Evaluations, i, prediction.IncidentVote(), model.mlModel.GetClassThreshold())
		}
		if trulyIncident == predictedIncident {
			numCorrect++
		}
		if trulyIncident {
			numRelevant++
		}
		if predictedIncident {
			numRetrieved++
			if trulyIncident {
				numTruePositives++
			}
		}
	}
	var ans PrecAndRecall
	if numRetrieved > 0 {
		ans.Precision = float64(numTruePositives) / float64(numRetrieved)
	}
	if numRelevant > 0 {
		ans.Recall = float64(numTruePositives) / float64(numRelevant)
	}
	if model.Evaluations.Len() > 0 {
		ans.Accuracy = float64(numCorrect) / float64(model.Evaluations.Len())
	}
	beta := 1.0
	if ans.Precision+ans.Recall > 0 {
		betaSquared := beta * beta
		ans.FBeta = (1 + betaSquared) * (ans.Precision * ans.Recall) / (betaSquared*ans.Precision + ans.Recall)
	}
	return ans
}

// CreateAndTestModel trains a ML model and saves it to a file with
// a name derived from the `datasetFile`. Then the model is tested
// on the `testData` using different class thresholds. The original
// class threshold is restored after the test.
// The function returns path of the saved model.
func (model *Predictor) CreateAndTestModel(
	ctx context.Context,
	trainData Dataset,
	testData Dataset,
	datasetFile string,
	reporter *Reporter,
) (string, error) {
	if trainData.Len() == 0 {
		return "", &DegenerateTrainingSetError{}
	}

	log.Info().
		Int("trainingDataSize", trainData.Len()).
		Int("numPositive", trainData.Positives()).
		Str("model", model.mlModel.GetInfo()).
		Msg("training model")

	outputPath := model.mlModel.CreateModelFileName(datasetFile)

	if err := model.mlModel.Train(ctx, trainData, model.LearningDataStats.AsComment()); err != nil {
		return "", fmt.Errorf("model training failed: %w", err)
	}

	if err := model.mlModel.SaveToFile(outputPath); err != nil {
		return "", fmt.Errorf("error saving model: %w", err)

	} else {
		log.Debug().Str("path", outputPath).Msg("saved model file")
	}

	if model.mlModel.IsInferenceOnly() || testData.Len() == 0 {
		return outputPath, nil
	}

	// ----- testing
	model.Evaluations = testData
	base := model.PrecisionAndRecall(nil)
	log.Info().
		Int("evalDataSize", testData.Len()).
		Float64("accuracy", base.Accuracy).
		Float64("precision", base.Precision).
		Float64("recall", base.Recall).
		Float64("classThreshold", model.mlModel.GetClassThreshold()).
		Msg("tested the model")

	if err := model.SweepClassThreshold(ctx, reporter, outputPath); err != nil {
		return outputPath, err
	}
	return outputPath, nil
}

const numSweepSteps = 19

// SweepClassThreshold evaluates the model for class thresholds
// 0.05...0.95 and stores results via the reporter.
func (model *Predictor) SweepClassThreshold(ctx context.Context, reporter *Reporter, modelPath string) error {
	origThreshold := model.mlModel.GetClassThreshold()
	defer model.mlModel.SetClassThreshold(origThreshold)

	var misclass misclassifiedRecordReporter
	if reporter != nil {
		misclass = reporter
	}
	bar := progressbar.Default(numSweepSteps, "testing the model")
	var csv strings.Builder
	csv.WriteString("vote;precision;recall;f-beta;accuracy\n")
	for i := 1; i <= numSweepSteps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		v := float64(i) * 0.05
		model.mlModel.SetClassThreshold(v)
		precall := model.PrecisionAndRecall(misclass)
		csv.WriteString(precall.CSV(v) + "\n")
		bar.Add(1)
	}
	if reporter == nil {
		return nil
	}
	if err := reporter.SaveThresholdSweep(csv.String(), modelPath); err != nil {
		return fmt.Errorf("failed to save threshold sweep: %w", err)
	}
	if reporter.MisclassRecordsOutPath != "" {
		if err := reporter.SaveMisclassifiedRecords(); err != nil {
			return fmt.Errorf("failed to save misclassified records: %w", err)
		}
	}
	return nil
}
