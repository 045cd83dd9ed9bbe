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

	"gonum.org/v1/gonum/stat"
)

// FitStats describes the quality of a fitted regression line
type FitStats struct {
	NumPoints int     `json:"numPoints"`
	RSquared  float64 `json:"rSquared"`
}

// Fit calculates threshold coefficients using ordinary least squares
// of degree 1 on (x, elapsed time) pairs. The multiplier is not fitted,
// it is just attached to the result.
func Fit(xs, ys []float64, multiplier float64) (Threshold, FitStats, error) {
	if len(xs) != len(ys) {
		return Threshold{}, FitStats{}, fmt.Errorf("failed to fit threshold: x and y sizes differ (%d vs. %d)", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return Threshold{}, FitStats{}, fmt.Errorf("failed to fit threshold: at least 2 points required, got %d", len(xs))
	}
	if stat.Variance(xs, nil) == 0 {
		return Threshold{}, FitStats{}, fmt.Errorf("failed to fit threshold: x values have zero variance")
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	ans := Threshold{
		Slope:      beta,
		Intercept:  alpha,
		Multiplier: multiplier,
	}
	fs := FitStats{
		NumPoints: len(xs),
		RSquared:  stat.RSquared(xs, ys, nil, alpha, beta),
	}
	if err := ans.Validate(); err != nil {
		return ans, fs, fmt.Errorf("failed to fit threshold: %w", err)
	}
	return ans, fs, nil
}
