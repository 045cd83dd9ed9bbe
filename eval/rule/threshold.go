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

// Package rule contains the regression based thresholds and the labeling
// rule built on top of them.
package rule

import (
	"fmt"
	"math"
)

// Threshold is an affine elapsed-time ceiling derived from a simple linear
// regression of elapsed time against a load metric, raised by a safety
// multiplier:
//
//	At(x) = (Slope * x + Intercept) * Multiplier
type Threshold struct {
	Slope      float64 `json:"slope" msgpack:"slope"`
	Intercept  float64 `json:"intercept" msgpack:"intercept"`
	Multiplier float64 `json:"multiplier" msgpack:"multiplier"`
}

// Raw evaluates the regression line itself (i.e. without the multiplier)
func (t Threshold) Raw(x float64) float64 {
	return t.Slope*x + t.Intercept
}

// At returns the elapsed time threshold for the load value x.
func (t Threshold) At(x float64) float64 {
	return t.Raw(x) * t.Multiplier
}

// Exceeded tells whether elapsed time is strictly above the threshold at x
func (t Threshold) Exceeded(x, elapsed float64) bool {
	return elapsed > t.At(x)
}

func (t Threshold) Validate() error {
	if math.IsNaN(t.Slope) || math.IsInf(t.Slope, 0) {
		return fmt.Errorf("invalid threshold slope %v", t.Slope)
	}
	if math.IsNaN(t.Intercept) || math.IsInf(t.Intercept, 0) {
		return fmt.Errorf("invalid threshold intercept %v", t.Intercept)
	}
	if math.IsNaN(t.Multiplier) || t.Multiplier <= 0 {
		return fmt.Errorf("threshold multiplier must be a positive number, got %v", t.Multiplier)
	}
	return nil
}

func (t Threshold) String() string {
	return fmt.Sprintf("(%.3e * x + %.2f) * %.2f", t.Slope, t.Intercept, t.Multiplier)
}
