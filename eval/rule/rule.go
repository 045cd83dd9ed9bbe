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

package rule

import (
	"fmt"
	"math"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
)

// Violation describes which of the configured thresholds a record exceeds.
type Violation struct {
	Rows bool
	CPU  bool
}

func (v Violation) Any() bool {
	return v.Rows || v.CPU
}

// Rule labels a record as a "bad performance" incident if its elapsed time
// exceeds at least one of the enabled thresholds. A nil threshold means
// the respective criterion is disabled.
//
// Missing metrics are treated as zero before evaluation. Please note that
// with a negative CPU slope, a missing cpu_percent produces the most
// tolerant CPU ceiling (Intercept * Multiplier).
type Rule struct {
	Rows *Threshold `json:"rows,omitempty" msgpack:"rows,omitempty"`
	CPU  *Threshold `json:"cpu,omitempty" msgpack:"cpu,omitempty"`
}

func (r Rule) Validate() error {
	if r.Rows == nil && r.CPU == nil {
		return fmt.Errorf("labeling rule has no threshold enabled")
	}
	if r.Rows != nil {
		if err := r.Rows.Validate(); err != nil {
			return fmt.Errorf("rows threshold: %w", err)
		}
	}
	if r.CPU != nil {
		if err := r.CPU.Validate(); err != nil {
			return fmt.Errorf("cpu threshold: %w", err)
		}
	}
	return nil
}

// Violations evaluates all the enabled thresholds against the record.
func (r Rule) Violations(rec feats.MetricRecord) Violation {
	var ans Violation
	elapsed := rec.Elapsed()
	if r.Rows != nil {
		ans.Rows = r.Rows.Exceeded(float64(rec.Rows()), elapsed)
	}
	if r.CPU != nil {
		ans.CPU = r.CPU.Exceeded(rec.CPU(), elapsed)
	}
	return ans
}

// Label returns 1 for an incident, 0 otherwise.
func (r Rule) Label(rec feats.MetricRecord) int {
	if r.Violations(rec).Any() {
		return 1
	}
	return 0
}

// Excess returns the largest difference between the elapsed time and
// an enabled threshold. Positive values mean the rule is violated.
func (r Rule) Excess(rec feats.MetricRecord) float64 {
	elapsed := rec.Elapsed()
	ans := math.Inf(-1)
	if r.Rows != nil {
		ans = max(ans, elapsed-r.Rows.At(float64(rec.Rows())))
	}
	if r.CPU != nil {
		ans = max(ans, elapsed-r.CPU.At(rec.CPU()))
	}
	return ans
}

// Equal compares the exact coefficients of both rules.
func (r Rule) Equal(other Rule) bool {
	return eqThreshold(r.Rows, other.Rows) && eqThreshold(r.CPU, other.CPU)
}

func (r Rule) String() string {
	chunks := make([]string, 0, 2)
	if r.Rows != nil {
		chunks = append(chunks, "rows: "+r.Rows.String())
	}
	if r.CPU != nil {
		chunks = append(chunks, "cpu: "+r.CPU.String())
	}
	return strings.Join(chunks, ", ")
}

func eqThreshold(a, b *Threshold) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
