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
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
)

var ErrDegenerateTrainingSet = errors.New("degenerate training set")

// MalformedRecordError reports a record violating basic
// non-negativity of its metrics. Such records are never used
// for training or prediction.
type MalformedRecordError struct {
	Record feats.MetricRecord
	Reason string
}

func (err *MalformedRecordError) Error() string {
	return fmt.Sprintf(
		"malformed record %s (query %s): %s", err.Record.UniqKey(), err.Record.QueryID, err.Reason)
}

// DegenerateTrainingSetError is returned by model training when
// there is nothing meaningful to learn (no rows or just one class).
// It matches ErrDegenerateTrainingSet via errors.Is.
type DegenerateTrainingSetError struct {
	NumRows      int
	NumPositives int
}

func (err *DegenerateTrainingSetError) Error() string {
	if err.NumRows == 0 {
		return "degenerate training set: no rows"
	}
	return fmt.Sprintf(
		"degenerate training set: single-class labels (rows: %d, positives: %d)",
		err.NumRows, err.NumPositives,
	)
}

func (err *DegenerateTrainingSetError) Is(target error) bool {
	return target == ErrDegenerateTrainingSet
}

// FeatureMismatchError signals that a model's feature columns
// cannot be mapped to the record schema.
type FeatureMismatchError struct {
	Expected []string
	Unknown  []string
}

func (err *FeatureMismatchError) Error() string {
	return fmt.Sprintf(
		"feature mismatch: unknown column(s) %s (model expects %s)",
		strings.Join(err.Unknown, ", "), strings.Join(err.Expected, ", "),
	)
}

// ClassifierLoadError wraps any problem encountered while reading
// a persisted classifier.
type ClassifierLoadError struct {
	Path string
	Err  error
}

func (err *ClassifierLoadError) Error() string {
	return fmt.Sprintf("failed to load classifier from %s: %s", err.Path, err.Err)
}

func (err *ClassifierLoadError) Unwrap() error {
	return err.Err
}

// ValidateRecord checks the record against the non-negativity
// invariants. Missing values are fine here, they are default-filled later.
func ValidateRecord(rec feats.MetricRecord) error {
	if rec.ElapsedTime != nil && *rec.ElapsedTime < 0 {
		return &MalformedRecordError{
			Record: rec,
			Reason: fmt.Sprintf("negative elapsed_time %.2f", *rec.ElapsedTime),
		}
	}
	if rec.RowsProcessed != nil && *rec.RowsProcessed < 0 {
		return &MalformedRecordError{
			Record: rec,
			Reason: fmt.Sprintf("negative rows_processed %d", *rec.RowsProcessed),
		}
	}
	return nil
}

// CheckTrainingLabels returns DegenerateTrainingSetError in case
// the labels are empty or contain just a single class.
func CheckTrainingLabels(y []int) error {
	var numPos int
	for _, v := range y {
		if v == 1 {
			numPos++
		}
	}
	if len(y) == 0 || numPos == 0 || numPos == len(y) {
		return &DegenerateTrainingSetError{NumRows: len(y), NumPositives: numPos}
	}
	return nil
}

// CheckFeatureNames tests whether all the names are known
// to the record schema.
func CheckFeatureNames(names []string) error {
	var unknown []string
	var probe feats.MetricRecord
	for _, name := range names {
		if _, ok := probe.Value(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no feature columns specified")
	}
	if len(unknown) > 0 {
		return &FeatureMismatchError{Expected: names, Unknown: unknown}
	}
	return nil
}
