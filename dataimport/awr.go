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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	sectionSQLByExecutions = "SQL ordered by Executions"
	sectionCompleteSQLText = "Complete List of SQL Text"

	headerSQLID         = "SQL Id"
	headerSQLText       = "SQL Text"
	headerRowsProcessed = "Rows Processed"
)

var ErrNoMetricsTable = errors.New("no SQL metrics table found in the report")

// Report contains data extracted from a single AWR report
type Report struct {
	SourceFile string               `json:"sourceFile"`
	Records    []feats.MetricRecord `json:"records"`
	Sessions   *SessionStats        `json:"sessions,omitempty"`

	// Problems lists rows which could not be parsed
	Problems []error `json:"-"`
}

// ----

type columnMap struct {
	sqlID   int
	rows    int
	elapsed int
	cpu     int
	size    int
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func mapColumns(headers []string) (columnMap, bool) {
	ans := columnMap{sqlID: -1, rows: -1, elapsed: -1, cpu: -1, size: len(headers)}
	for i, h := range headers {
		h = normalizeSpaces(h)
		switch {
		case h == headerSQLID:
			ans.sqlID = i
		case h == headerRowsProcessed:
			ans.rows = i
		case strings.Contains(h, "Elapsed") && strings.Contains(h, "Time") && ans.elapsed < 0:
			ans.elapsed = i
		case strings.Contains(h, "%") && strings.Contains(strings.ToUpper(h), "CPU"):
			ans.cpu = i
		}
	}
	return ans, ans.sqlID >= 0
}

// ----

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var ans []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			ans = append(ans, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return ans
}

// tableRows returns the header row cells and the data rows
// (as lists of cell texts) of a table.
func tableRows(table *html.Node) (headers []string, rows [][]string) {
	for i, tr := range findAll(table, atom.Tr) {
		if i == 0 {
			for _, th := range findAll(tr, atom.Th) {
				headers = append(headers, nodeText(th))
			}
			if len(headers) > 0 {
				continue
			}
		}
		tds := findAll(tr, atom.Td)
		if len(tds) == 0 {
			continue
		}
		row := make([]string, len(tds))
		for j, td := range tds {
			row[j] = nodeText(td)
		}
		rows = append(rows, row)
	}
	return
}

// documentTables collects tables of interest in document order. Tables
// following the AWR section headings are identified by the heading
// text, other tables are available as `diffTables` if marked
// with the `tdiff` class.
type documentTables struct {
	byExecutions []*html.Node
	sqlTexts     []*html.Node
	diffTables   []*html.Node
	snapRows     []*html.Node
}

func collectTables(doc *html.Node) documentTables {
	var ans documentTables
	var pendingSection string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H3:
				if hasClass(n, "awr") {
					pendingSection = normalizeSpaces(nodeText(n))
				}
			case atom.Table:
				switch {
				case pendingSection == sectionSQLByExecutions:
					ans.byExecutions = append(ans.byExecutions, n)
				case strings.Contains(pendingSection, sectionCompleteSQLText):
					ans.sqlTexts = append(ans.sqlTexts, n)
				case hasClass(n, "tdiff"):
					ans.diffTables = append(ans.diffTables, n)
				}
				pendingSection = ""
			case atom.Tr:
				if first := firstCellText(n); first == "Begin Snap:" || first == "End Snap:" {
					ans.snapRows = append(ans.snapRows, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return ans
}

func firstCellText(tr *html.Node) string {
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			return nodeText(c)
		}
	}
	return ""
}

// ----

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "\u00a0", "")
}

func parseRows(s string) (*int64, error) {
	s = cleanNumber(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return &v, nil
	}
	fv, err2 := strconv.ParseFloat(s, 64)
	if err2 != nil {
		return nil, fmt.Errorf("invalid rows processed value '%s': %w", s, err)
	}
	v = int64(fv)
	return &v, nil
}

func parseElapsed(s string) (*float64, error) {
	s = cleanNumber(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid elapsed time value '%s': %w", s, err)
	}
	return &v, nil
}

// parseCPU accepts also a decimal comma as %CPU never
// needs a thousands separator.
func parseCPU(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CPU percent value '%s': %w", s, err)
	}
	return &v, nil
}

func extractMetrics(table *html.Node, sourceFile string, dest *Report, seen map[string]bool) bool {
	headers, rows := tableRows(table)
	cols, ok := mapColumns(headers)
	if !ok {
		return false
	}
	for _, cells := range rows {
		if len(cells) < cols.size {
			continue
		}
		sqlID := cells[cols.sqlID]
		if sqlID == "" || seen[sqlID] {
			continue
		}
		rec := feats.MetricRecord{
			QueryID:    sqlID,
			SourceFile: sourceFile,
		}
		var err error
		if cols.rows >= 0 {
			rec.RowsProcessed, err = parseRows(cells[cols.rows])
		}
		if err == nil && cols.elapsed >= 0 {
			rec.ElapsedTime, err = parseElapsed(cells[cols.elapsed])
		}
		if err == nil && cols.cpu >= 0 {
			rec.CPUPercent, err = parseCPU(cells[cols.cpu])
		}
		if err != nil {
			err = fmt.Errorf("failed to parse row of SQL Id %s in %s: %w", sqlID, sourceFile, err)
			log.Warn().Err(err).Msg("skipping AWR table row")
			dest.Problems = append(dest.Problems, err)
			continue
		}
		seen[sqlID] = true
		dest.Records = append(dest.Records, rec)
	}
	return true
}

func extractSQLTexts(tables []*html.Node) map[string]string {
	ans := make(map[string]string)
	for _, table := range tables {
		headers, rows := tableRows(table)
		idIdx, textIdx := -1, -1
		for i, h := range headers {
			switch normalizeSpaces(h) {
			case headerSQLID:
				idIdx = i
			case headerSQLText:
				textIdx = i
			}
		}
		if idIdx < 0 || textIdx < 0 {
			continue
		}
		for _, cells := range rows {
			if len(cells) <= max(idIdx, textIdx) {
				continue
			}
			ans[cells[idIdx]] = cells[textIdx]
		}
	}
	return ans
}

// ParseReport extracts per-SQL metrics from an AWR HTML report.
// Metrics are taken from the "SQL ordered by Executions" section and,
// in case there is no such section (e.g. in diff reports), from tables
// with the `tdiff` class. Query texts are attached from the
// "Complete List of SQL Text" section. Rows which cannot be parsed are
// skipped and listed in Report.Problems. Metrics missing in the report
// are left unset.
func ParseReport(r io.Reader, sourceFile string) (Report, error) {
	ans := Report{SourceFile: sourceFile}
	doc, err := html.Parse(r)
	if err != nil {
		return ans, fmt.Errorf("failed to parse AWR report %s: %w", sourceFile, err)
	}
	tables := collectTables(doc)
	seen := make(map[string]bool)
	var found bool
	for _, t := range tables.byExecutions {
		found = extractMetrics(t, sourceFile, &ans, seen) || found
	}
	if !found {
		for _, t := range tables.diffTables {
			headers, _ := tableRows(t)
			cols, ok := mapColumns(headers)
			if !ok || cols.rows < 0 || cols.elapsed < 0 {
				continue
			}
			found = extractMetrics(t, sourceFile, &ans, seen) || found
		}
	}
	if !found {
		return ans, fmt.Errorf("failed to process %s: %w", sourceFile, ErrNoMetricsTable)
	}
	texts := extractSQLTexts(tables.sqlTexts)
	for i := range ans.Records {
		ans.Records[i].QueryText = texts[ans.Records[i].QueryID]
	}
	ans.Sessions = extractSessions(tables.snapRows)
	return ans, nil
}

// ParseReportFile is a file variant of ParseReport. The file's base name
// is used as the source identifier.
func ParseReportFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open AWR report: %w", err)
	}
	defer f.Close()
	return ParseReport(f, filepath.Base(path))
}
