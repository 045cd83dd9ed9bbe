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

package dataimport

import (
	"context"

	"github.com/Anasbourzik7/awrdetect/eval"
)

// DetectReport runs incident detection over records of a parsed report.
// Rows the extraction could not parse are reported among dropped records.
func DetectReport(ctx context.Context, clf *eval.Classifier, rep Report) (eval.Detection, error) {
	det, err := eval.Detect(ctx, clf, rep.Records)
	if err != nil {
		return det, err
	}
	det.SourceFile = rep.SourceFile
	if rep.Sessions != nil {
		avg := rep.Sessions.Average
		det.AvgSessions = &avg
	}
	for _, p := range rep.Problems {
		det.Dropped = append(det.Dropped, p.Error())
	}
	return det, nil
}
