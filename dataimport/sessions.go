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
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SessionStats contains number of sessions at the beginning
// and at the end of the report's snapshot interval.
type SessionStats struct {
	Begin   int     `json:"begin"`
	End     int     `json:"end"`
	Average float64 `json:"average"`
}

// snapSessionsCell is a position of the "Sessions" column
// in the snapshot table (Snap Id, Snap Time go before it)
const snapSessionsCell = 3

func snapSessions(tr *html.Node) (int, bool) {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, nodeText(c))
		}
	}
	if len(cells) <= snapSessionsCell {
		return 0, false
	}
	v, err := strconv.Atoi(cleanNumber(cells[snapSessionsCell]))
	if err != nil {
		return 0, false
	}
	return v, true
}

// extractSessions returns nil in case both Begin and End snapshot
// rows are not available.
func extractSessions(rows []*html.Node) *SessionStats {
	var begin, end *int
	for _, tr := range rows {
		v, ok := snapSessions(tr)
		if !ok {
			continue
		}
		switch strings.ToLower(firstCellText(tr)) {
		case "begin snap:":
			begin = &v
		case "end snap:":
			end = &v
		}
	}
	if begin == nil || end == nil {
		log.Debug().Msg("no complete Begin/End snapshot session info found")
		return nil
	}
	return &SessionStats{
		Begin:   *begin,
		End:     *end,
		Average: float64(*begin+*end) / 2,
	}
}
