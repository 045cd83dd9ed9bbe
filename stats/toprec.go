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

package stats

import (
	"github.com/Anasbourzik7/awrdetect/eval/feats"
)

type MatchItem struct {
	Record feats.MetricRecord
	Score  float64
}

// TopRecords keeps a limited number of records with
// the highest score, ordered from the highest one.
type TopRecords struct {
	size int
	data []MatchItem
}

func (bm *TopRecords) At(idx int) MatchItem {
	return bm.data[idx]
}

func (bm *TopRecords) Items() []MatchItem {
	return bm.data
}

func (bm *TopRecords) Len() int {
	return len(bm.data)
}

func (bm *TopRecords) TryAdd(rec feats.MetricRecord, score float64) bool {
	pos := -1
	for i := 0; i < len(bm.data); i++ {
		if score > bm.data[i].Score {
			pos = i
			break
		}
	}
	if pos == -1 && len(bm.data) < bm.size {
		bm.data = append(bm.data, MatchItem{Record: rec, Score: score})
		pos = len(bm.data) - 1

	} else if pos >= 0 {
		tmp := make([]MatchItem, len(bm.data[pos:]))
		copy(tmp, bm.data[pos:])
		bm.data = bm.data[:pos]
		bm.data = append(bm.data, MatchItem{Record: rec, Score: score})
		bm.data = append(bm.data, tmp...)
	}
	if len(bm.data) > bm.size {
		bm.data = bm.data[:bm.size]
	}
	return pos > -1
}

func NewTopRecords(size int) *TopRecords {
	return &TopRecords{
		size: size,
		data: make([]MatchItem, 0, size+1),
	}
}
