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

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/eval/zero"
	"github.com/Anasbourzik7/awrdetect/stats"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

type learnArgs struct {
	srcPath         string
	fromDB          bool
	modelType       string
	misclassLogPath string
	storeRun        bool
	outBase         string
}

func buildDataset(
	conf *cnf.Conf,
	featureNames []string,
	labelingRule rule.Rule,
	records []feats.MetricRecord,
	trainingFilter bool,
) eval.Dataset {
	builder, err := eval.NewDatasetBuilder(featureNames, labelingRule, conf.Training.FitBounds())
	if err != nil {
		exitWithError(exitErrorInvalidConfig, "failed to create dataset builder", err)
	}
	builder.TrainingFilter = trainingFilter
	ds, problems := builder.Build(records)
	for _, p := range problems {
		log.Debug().Err(p).Msg("record dropped")
	}
	log.Info().
		Int("numRecords", len(records)).
		Int("numMalformed", len(problems)).
		Int("datasetSize", ds.Len()).
		Int("numPositive", ds.Positives()).
		Msg("labeled dataset")
	return ds
}

func storeTrainingRun(
	ctx context.Context,
	conf *cnf.Conf,
	tr stats.Training,
	train, test eval.Dataset,
	testPredictions []int,
) (string, error) {
	db, err := conf.Store.Open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	trainingID, err := db.CreateNewTraining(tr)
	if err != nil {
		return "", err
	}
	if err := db.SetTrainingRecords(ctx, trainingID, train.Records, false, nil); err != nil {
		return trainingID, err
	}
	if err := db.SetTrainingRecords(ctx, trainingID, test.Records, true, testPredictions); err != nil {
		return trainingID, err
	}
	return trainingID, nil
}

type learnResult struct {
	ModelPath        string
	InferenceOnly    bool
	Accuracy         float64
	BaselineAccuracy float64
	TestPredictions  []int
}

// trainAndTest trains and saves the predictor's model and scores it on
// the test data. Inference-only models just export their training data,
// so there is nothing to test.
func trainAndTest(
	ctx context.Context,
	predictor *eval.Predictor,
	labelingRule rule.Rule,
	train, test eval.Dataset,
	datasetFile string,
	reporter *eval.Reporter,
) (learnResult, error) {
	var ans learnResult
	modelPath, err := predictor.CreateAndTestModel(ctx, train, test, datasetFile, reporter)
	if err != nil {
		return ans, err
	}
	ans.ModelPath = modelPath
	mlModel := predictor.Model()
	if mlModel.IsInferenceOnly() {
		ans.InferenceOnly = true
		return ans, nil
	}
	if test.Len() == 0 {
		return ans, nil
	}
	clf, err := eval.NewClassifier(mlModel)
	if err != nil {
		return ans, fmt.Errorf("trained model is not usable: %w", err)
	}
	ans.TestPredictions, err = clf.Predict(test.Records)
	if err != nil {
		return ans, fmt.Errorf("failed to test model: %w", err)
	}
	ans.Accuracy, err = clf.Score(test)
	if err != nil {
		return ans, fmt.Errorf("failed to test model: %w", err)
	}
	baseline := eval.NewPredictor(zero.NewZeroModel(labelingRule))
	baseline.Evaluations = test
	ans.BaselineAccuracy = baseline.PrecisionAndRecall(nil).Accuracy
	return ans, nil
}

func runActionLearn(ctx context.Context, conf *cnf.Conf, args learnArgs) {
	modelType := args.modelType
	if modelType == "" {
		modelType = conf.Model.Type
	}
	labelingRule := conf.Thresholds.LabelingRule()
	records, err := loadRecords(ctx, conf, args.srcPath, args.fromDB)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to load records", err)
	}
	ds := buildDataset(conf, feats.DefaultFeatureNames, labelingRule, records, true)
	train, test := ds.Split(conf.Training.TestRatio, conf.Training.SplitSeed())

	mlModel, err := modload.NewMLModel(modelType, conf.Training.NumTrees, conf.Model.TrainingVoteThreshold(), labelingRule)
	if err != nil {
		exitWithError(exitErrorGeneralFailure, "failed to create model", err)
	}
	predictor := eval.NewPredictor(mlModel)
	predictor.LearningDataStats = eval.LearningDataStats{
		NumProcessed: len(records),
		NumDropped:   len(records) - ds.Len(),
		NumTrain:     train.Len(),
		NumTest:      test.Len(),
	}
	reporter := &eval.Reporter{MisclassRecordsOutPath: args.misclassLogPath}

	datasetFile := args.outBase
	if datasetFile == "" {
		datasetFile = args.srcPath
	}
	if datasetFile == "" {
		datasetFile = filepath.Join(filepath.Dir(conf.SrcPath()), "awr_data")
	}
	res, err := trainAndTest(ctx, predictor, labelingRule, train, test, datasetFile, reporter)
	if errors.Is(err, eval.ErrDegenerateTrainingSet) {
		exitWithError(exitErrorDegenerateTrainingSet, "cannot train model", err)

	} else if err != nil {
		exitWithError(exitErrorTrainingFailed, "training failed", err)
	}

	if res.InferenceOnly {
		fmt.Printf(
			"training data for an external trainer exported to %s\n",
			color.New(color.FgHiGreen).Sprint(res.ModelPath),
		)
		fmt.Println("the model must be trained externally, no test or training run record available")
		return
	}

	log.Info().
		Float64("accuracy", res.Accuracy).
		Float64("baselineAccuracy", res.BaselineAccuracy).
		Msg("model accuracy on test data")
	fmt.Printf("model saved to %s\n", color.New(color.FgHiGreen).Sprint(res.ModelPath))
	fmt.Printf("accuracy on %d test records: %.4f\n", test.Len(), res.Accuracy)

	if args.storeRun {
		trainingID, err := storeTrainingRun(
			ctx,
			conf,
			stats.Training{
				Created:        time.Now(),
				ModelType:      modelType,
				ModelPath:      res.ModelPath,
				Rule:           labelingRule,
				ClassThreshold: mlModel.GetClassThreshold(),
				Accuracy:       res.Accuracy,
				NumTrain:       train.Len(),
				NumTest:        test.Len(),
			},
			train,
			test,
			res.TestPredictions,
		)
		if err != nil {
			log.Error().Err(err).Msg("failed to store training run")
			return
		}
		fmt.Printf("training run ID: %s\n", trainingID)
	}
}

func runActionEvaluate(
	ctx context.Context,
	conf *cnf.Conf,
	modelType string,
	modelPath string,
	srcPath string,
	misclassLogPath string,
) {
	if modelType == "" {
		modelType = conf.Model.Type
	}
	mlModel, err := modload.GetMLModel(modelType, modelPath)
	if err != nil {
		exitWithError(exitErrorFailedToLoadModel, "failed to load model", err)
	}
	if conf.Model.VoteThreshold > 0 {
		mlModel.SetClassThreshold(conf.Model.VoteThreshold)
	}
	labelingRule := eval.CheckRuleConsistency(mlModel.LabelingRule(), conf.Thresholds.LabelingRule())
	records, err := loadRecords(ctx, conf, srcPath, false)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to load records", err)
	}
	ds := buildDataset(conf, mlModel.FeatureNames(), labelingRule, records, false)

	predictor := eval.NewPredictor(mlModel)
	predictor.Evaluations = ds
	base := predictor.PrecisionAndRecall(nil)
	log.Info().
		Int("evalDataSize", ds.Len()).
		Float64("accuracy", base.Accuracy).
		Float64("precision", base.Precision).
		Float64("recall", base.Recall).
		Float64("classThreshold", mlModel.GetClassThreshold()).
		Msg("evaluated the model")

	reporter := &eval.Reporter{MisclassRecordsOutPath: misclassLogPath}
	if err := predictor.SweepClassThreshold(ctx, reporter, modelPath); err != nil {
		exitWithError(exitErrorGeneralFailure, "evaluation failed", err)
	}
	fmt.Printf("threshold sweep saved to %s\n", eval.SweepFilePath(modelPath))
}
