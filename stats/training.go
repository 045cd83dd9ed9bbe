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

package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (database *Database) createTrainingTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE training (" +
			"id VARCHAR(36) PRIMARY KEY NOT NULL, " +
			"created INTEGER NOT NULL, " +
			"model_type VARCHAR(16) NOT NULL, " +
			"model_path TEXT, " +
			"labeling_rule TEXT NOT NULL, " +
			"class_threshold DOUBLE, " +
			"accuracy DOUBLE, " +
			"num_train INTEGER, " +
			"num_test INTEGER" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table training: %w", err)
	}
	log.Info().Msg("created table `training`")
	return nil
}

func (database *Database) createTrainingRecordsTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE training_records (" +
			"training_id VARCHAR(36) NOT NULL, " +
			"record_id VARCHAR(40) NOT NULL, " +
			"is_validation INT NOT NULL DEFAULT 0, " +
			"truth INT NOT NULL, " +
			"prediction INT, " +
			"PRIMARY KEY(training_id, record_id) " +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table training_records: %w", err)
	}
	log.Info().Msg("created table `training_records`")
	return nil
}

// Training describes a single training run
type Training struct {
	ID             string
	Created        time.Time
	ModelType      string
	ModelPath      string
	Rule           rule.Rule
	ClassThreshold float64
	Accuracy       float64
	NumTrain       int
	NumTest        int
}

// CreateNewTraining stores a training run and returns its generated ID
func (database *Database) CreateNewTraining(tr Training) (string, error) {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	if tr.Created.IsZero() {
		tr.Created = time.Now()
	}
	ruleData, err := json.Marshal(tr.Rule)
	if err != nil {
		return "", fmt.Errorf("failed to create new training: %w", err)
	}
	_, err = database.db.Exec(
		"INSERT INTO training (id, created, model_type, model_path, labeling_rule, "+
			"class_threshold, accuracy, num_train, num_test) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tr.ID, tr.Created.Unix(), tr.ModelType, tr.ModelPath, string(ruleData),
		tr.ClassThreshold, tr.Accuracy, tr.NumTrain, tr.NumTest,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create new training: %w", err)
	}
	return tr.ID, nil
}

func (database *Database) GetTraining(trainingID string) (Training, error) {
	row := database.db.QueryRow(
		"SELECT id, created, model_type, model_path, labeling_rule, class_threshold, "+
			"accuracy, num_train, num_test FROM training WHERE id = ?", trainingID)
	var ans Training
	var created int64
	var ruleData string
	var modelPath sql.NullString
	var threshold, accuracy sql.NullFloat64
	err := row.Scan(
		&ans.ID, &created, &ans.ModelType, &modelPath, &ruleData,
		&threshold, &accuracy, &ans.NumTrain, &ans.NumTest,
	)
	if err == sql.ErrNoRows {
		return ans, fmt.Errorf("training %s not found: %w", trainingID, err)

	} else if err != nil {
		return ans, fmt.Errorf("failed to get training: %w", err)
	}
	if err := json.Unmarshal([]byte(ruleData), &ans.Rule); err != nil {
		return ans, fmt.Errorf("failed to get training: %w", err)
	}
	ans.Created = time.Unix(created, 0)
	ans.ModelPath = modelPath.String
	ans.ClassThreshold = threshold.Float64
	ans.Accuracy = accuracy.Float64
	return ans, nil
}

// SetTrainingRecords stores which records were used for training
// and which ones for validation (along with model predictions).
// The `predictions` argument can be nil for training records.
func (database *Database) SetTrainingRecords(
	ctx context.Context,
	trainingID string,
	records []feats.MetricRecord,
	isValidation bool,
	predictions []int,
) error {
	if predictions != nil && len(predictions) != len(records) {
		return fmt.Errorf("failed to set training records: number of predictions does not match")
	}
	tx, err := database.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to set training records: %w", err)
	}
	for i, rec := range records {
		var pred sql.NullInt64
		if predictions != nil {
			pred = sql.NullInt64{Int64: int64(predictions[i]), Valid: true}
		}
		_, err := tx.ExecContext(
			ctx,
			"REPLACE INTO training_records (training_id, record_id, is_validation, truth, prediction) "+
				"VALUES (?, ?, ?, ?, ?)",
			trainingID, IdempotentID(rec.SourceFile, rec.QueryID), isValidation, rec.Incident, pred,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to set training records: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to set training records: %w", err)
	}
	return nil
}

type TrainingResult struct {
	RecordID     string
	QueryID      string
	SourceFile   string
	IsValidation bool
	Prediction   int
	Truth        int
}

// GetTrainingValidationData returns validation records of a training
// joined with the stored AWR data.
func (database *Database) GetTrainingValidationData(trainingID string) ([]TrainingResult, error) {
	rows, err := database.db.Query(
		"SELECT tr.record_id, d.query_id, d.awr_file, tr.is_validation, "+
			"COALESCE(tr.prediction, -1), tr.truth "+
			"FROM training_records AS tr "+
			"JOIN awr_data AS d ON d.id = tr.record_id "+
			"WHERE tr.training_id = ? AND tr.is_validation = 1 "+
			"ORDER BY d.awr_file, d.query_id",
		trainingID,
	)
	if err != nil {
		return []TrainingResult{}, fmt.Errorf("failed to get validation data: %w", err)
	}
	defer rows.Close()
	ans := make([]TrainingResult, 0, 1000)
	for rows.Next() {
		var v TrainingResult
		err := rows.Scan(&v.RecordID, &v.QueryID, &v.SourceFile, &v.IsValidation, &v.Prediction, &v.Truth)
		if err != nil {
			return []TrainingResult{}, fmt.Errorf("failed to get validation data: %w", err)
		}
		ans = append(ans, v)
	}
	return ans, rows.Err()
}
