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

package modutils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var dataset2modelRegexp = regexp.MustCompile(`(?i)(\.records)?\.(json|msgpack)(\.gz|\.gzip)?$`)

// FormatRoughSize formats a number of processed rows in a compact
// form (e.g. 1.2M).
func FormatRoughSize(value int64) string {
	if value < 10000 {
		return fmt.Sprintf("%d", value)
	}

	if value >= 1000000000 { // 1 billion or more
		billions := float64(value) / 1000000000.0
		return fmt.Sprintf("%.1fG", billions)
	}

	if value >= 1000000 { // 1 million or more
		millions := float64(value) / 1000000.0
		return fmt.Sprintf("%.1fM", millions)
	}

	return fmt.Sprintf("%.1fk", float64(value)/1000.0)
}

// ExtractModelNameBase removes dataset file suffixes so
// a model name can be derived from it.
func ExtractModelNameBase(filename string) string {
	return dataset2modelRegexp.ReplaceAllString(filename, "")
}

func IsGzipPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".gz" || ext == ".gzip"
}
