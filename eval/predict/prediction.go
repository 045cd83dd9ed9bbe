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

package predict

// Prediction is a single-row output of a classifier.
// Votes contains per-class scores (index = class), i.e. for
// the binary incident classifier [P(no incident), P(incident)].
type Prediction struct {
	Votes          []float64 `json:"votes"`
	PredictedClass int       `json:"predictedClass"`
}

// IncidentVote returns the score the model assigns to the
// "incident" class. For a model with no votes, zero is returned.
func (p Prediction) IncidentVote() float64 {
	if len(p.Votes) < 2 {
		return 0
	}
	return p.Votes[1]
}
