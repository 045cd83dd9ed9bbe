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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
)

type misclassification struct {
	Record    feats.MetricRecord `json:"record"`
	MLOutput  float64            `json:"mlOutput"`
	Threshold float64            `json:"threshold"`
	NumRepeat int                `json:"numRepeat"`
	Type      string             `json:"type"`
}

func (m misclassification) AbsErrorSize() float64 {
	return math.Abs(m.MLOutput/float64(max(m.NumRepeat, 1)) - m.Threshold)
}

// ------------------------

// Reporter collects records the model got wrong during
// evaluation and stores evaluation outputs.
type Reporter struct {
	misclassRecords        map[string]misclassification
	MisclassRecordsOutPath string
}

func (reporter *Reporter) AddMisclassifiedRecord(ds Dataset, idx int, mlOut, threshold float64) {
	rec := ds.Records[idx]
	predictedIncident := mlOut > threshold
	actualIncident := ds.Y[idx] == 1
	var tp string
	if actualIncident && !predictedIncident {
		tp = "FN"

	} else if !actualIncident && predictedIncident {
		tp = "FP"
	}
	if reporter.misclassRecords == nil {
		reporter.misclassRecords = make(map[string]misclassification)
	}
	curr, ok := reporter.misclassRecords[rec.UniqKey()]
	if ok {
		curr.MLOutput += mlOut
		curr.NumRepeat += 1
		if tp != curr.Type {
			curr.Type = "*"
		}
		reporter.misclassRecords[rec.UniqKey()] = curr

	} else {
		reporter.misclassRecords[rec.UniqKey()] = misclassification{
			Record:    rec,
			MLOutput:  mlOut,
			Threshold: threshold,
			NumRepeat: 1,
			Type:      tp,
		}
	}
}

func (reporter *Reporter) NumMisclassified() int {
	return len(reporter.misclassRecords)
}

func (reporter *Reporter) sortedMisclassifiedRecords() []misclassification {
	ans := make([]misclassification, 0, len(reporter.misclassRecords))
	for _, v := range reporter.misclassRecords {
		ans = append(ans, v)
	}
	slices.SortFunc(
		ans,
		func(v1, v2 misclassification) int {
			if v1.NumRepeat < v2.NumRepeat {
				return 1

			} else if v1.NumRepeat > v2.NumRepeat {
				return -1
			}
			if v1.AbsErrorSize() < v2.AbsErrorSize() {
				return 1

			} else if v1.AbsErrorSize() > v2.AbsErrorSize() {
				return -1
			}
			return strings.Compare(v1.Record.UniqKey(), v2.Record.UniqKey())
		},
	)
	return ans
}

// SaveMisclassifiedRecords writes a TSV file with misclassified records,
// most frequently misclassified first.
func (reporter *Reporter) SaveMisclassifiedRecords() error {
	data := reporter.sortedMisclassifiedRecords()
	if reporter.MisclassRecordsOutPath == "" {
		return fmt.Errorf("MisclassRecordsOutPath is not set")
	}

	f, err := os.Create(reporter.MisclassRecordsOutPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", reporter.MisclassRecordsOutPath, err)
	}
	defer f.Close()

	for _, item := range data {
		_, err := fmt.Fprintf(f, "%s\t%.2f\t%d\t%.2f\t%0.2f\t%s(%d)\n",
			item.Record.UniqKey(),
			item.Record.Elapsed(),
			item.Record.Rows(),
			item.Record.CPU(),
			item.MLOutput/float64(item.NumRepeat),
			item.Type,
			item.NumRepeat,
		)
		if err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
	}
	return nil
}

// SaveThresholdSweep stores CSV data produced by testing different class
// thresholds. The output file name is derived from the provided modelPath.
func (reporter *Reporter) SaveThresholdSweep(data, modelPath string) error {
	csvPath := SweepFilePath(modelPath)
	if err := os.WriteFile(csvPath, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write threshold sweep: %w", err)
	}
	return nil
}

func SweepFilePath(modelPath string) string {
	return fmt.Sprintf("%s.sweep.csv", strings.TrimSuffix(modelPath, filepath.Ext(modelPath)))
}
