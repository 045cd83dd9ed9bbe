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

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/rs/zerolog/log"
)

// Attribute explains an incident by the thresholds it violates.
// The rule must be the one the classifier was trained with.
// An incident which violates no threshold is a valid outcome
// (CauseUnexplained) as the classifier is not bound to reproduce
// the rule exactly.
func Attribute(rec feats.MetricRecord, r rule.Rule) feats.Cause {
	if rec.Incident != 1 {
		return feats.CauseNone
	}
	v := r.Violations(rec.Filled())
	switch {
	case v.Rows && v.CPU:
		return feats.CauseRowsAndCPU
	case v.Rows:
		return feats.CauseRows
	case v.CPU:
		return feats.CauseCPU
	}
	return feats.CauseUnexplained
}

// Annotate produces a new slice of records with the incident flag
// set from the predictions and the respective cause. The input
// records are not modified.
func Annotate(records []feats.MetricRecord, predictions []int, r rule.Rule) ([]feats.MetricRecord, error) {
	if len(records) != len(predictions) {
		return nil, fmt.Errorf(
			"failed to annotate records: %d records vs. %d predictions", len(records), len(predictions))
	}
	ans := make([]feats.MetricRecord, len(records))
	for i, rec := range records {
		rec.Incident = predictions[i]
		rec.Cause = Attribute(rec, r)
		ans[i] = rec
	}
	return ans, nil
}

// CountCauses returns number of records per cause
func CountCauses(records []feats.MetricRecord) map[feats.Cause]int {
	ans := make(map[feats.Cause]int)
	for _, rec := range records {
		c := rec.Cause
		if c == "" {
			c = feats.CauseNone
		}
		ans[c]++
	}
	return ans
}

// CheckRuleConsistency compares the rule stored with a model with
// a configured one. The stored one always wins, the configured one
// is reported in case it differs.
func CheckRuleConsistency(stored, configured rule.Rule) rule.Rule {
	if !stored.Equal(configured) {
		log.Warn().
			Str("modelRule", stored.String()).
			Str("configuredRule", configured.String()).
			Msg("configured thresholds differ from the ones the model was trained with, using the model ones")
	}
	return stored
}
