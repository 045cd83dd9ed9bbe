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
	"time"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Detection is a result of an inference run over records
// of a single AWR report.
type Detection struct {
	RunID        string               `json:"runId"`
	SourceFile   string               `json:"sourceFile,omitempty"`
	Created      time.Time            `json:"created"`
	Model        string               `json:"model"`
	Records      []feats.MetricRecord `json:"records"`
	NumIncidents int                  `json:"numIncidents"`
	CauseCounts  map[feats.Cause]int  `json:"causeCounts"`
	Dropped      []string             `json:"dropped,omitempty"`

	// AvgSessions is the average of Begin/End snapshot sessions
	// of the report (if available)
	AvgSessions *float64 `json:"avgSessions,omitempty"`
}

// Incidents returns only the records flagged as incidents
func (d Detection) Incidents() []feats.MetricRecord {
	ans := make([]feats.MetricRecord, 0, d.NumIncidents)
	for _, rec := range d.Records {
		if rec.Incident == 1 {
			ans = append(ans, rec)
		}
	}
	return ans
}

// Detect runs validation, prediction and cause attribution over
// the records. Malformed records are skipped and listed in the result.
// The input slice is not modified.
func Detect(ctx context.Context, clf *Classifier, records []feats.MetricRecord) (Detection, error) {
	ans := Detection{
		RunID:   uuid.New().String(),
		Created: time.Now(),
		Model:   clf.Info(),
	}
	valid := make([]feats.MetricRecord, 0, len(records))
	for _, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			log.Warn().Err(err).Str("runId", ans.RunID).Msg("skipping record")
			ans.Dropped = append(ans.Dropped, err.Error())
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) > 0 {
		ans.SourceFile = valid[0].SourceFile
	}
	if err := ctx.Err(); err != nil {
		return ans, fmt.Errorf("detection interrupted: %w", err)
	}
	labels, err := clf.Predict(valid)
	if err != nil {
		return ans, fmt.Errorf("failed to detect incidents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ans, fmt.Errorf("detection interrupted: %w", err)
	}
	ans.Records, err = Annotate(valid, labels, clf.Rule())
	if err != nil {
		return ans, fmt.Errorf("failed to detect incidents: %w", err)
	}
	for _, v := range labels {
		ans.NumIncidents += v
	}
	ans.CauseCounts = CountCauses(ans.Records)
	log.Debug().
		Str("runId", ans.RunID).
		Int("numRecords", len(ans.Records)).
		Int("numIncidents", ans.NumIncidents).
		Int("numDropped", len(ans.Dropped)).
		Msg("finished incident detection")
	return ans, nil
}
