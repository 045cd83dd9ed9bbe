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

// Package export writes detection results in various output formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modutils"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog/log"
)

type Format string

const (
	FormatTable   Format = "table"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

func ParseFormat(v string) (Format, error) {
	f := Format(strings.ToLower(v))
	switch f {
	case FormatTable, FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", v)
}

// Options control which records are written.
type Options struct {
	IncidentsOnly bool
}

func (opts Options) records(det eval.Detection) []feats.MetricRecord {
	if opts.IncidentsOnly {
		return det.Incidents()
	}
	return det.Records
}

// Write writes the detection in the required format.
func Write(w io.Writer, det eval.Detection, format Format, opts Options) error {
	switch format {
	case FormatTable:
		return writeTable(w, det, opts)
	case FormatCSV:
		return writeCSV(w, det, opts)
	case FormatJSON:
		return writeJSON(w, det, opts)
	case FormatParquet:
		return writeParquet(w, det, opts)
	}
	return fmt.Errorf("unsupported output format: %s", format)
}

// WriteFile writes the detection to a file. An empty path means
// the standard output.
func WriteFile(path string, det eval.Detection, format Format, opts Options) error {
	if path == "" {
		if format == FormatParquet {
			return fmt.Errorf("parquet output requires an output file")
		}
		return Write(os.Stdout, det, format, opts)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()
	if err := Write(file, det, format, opts); err != nil {
		return err
	}
	log.Info().Str("file", path).Str("format", string(format)).Msg("wrote detection result")
	return nil
}

func fmtOptFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func fmtOptRows(v *int64, rough bool) string {
	if v == nil {
		return ""
	}
	if rough {
		return modutils.FormatRoughSize(*v)
	}
	return strconv.FormatInt(*v, 10)
}

func writeTable(w io.Writer, det eval.Detection, opts Options) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "SQL Id", "Elapsed (s)", "Rows", "%CPU", "Incident", "Cause"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for i, rec := range opts.records(det) {
		row := []string{
			strconv.Itoa(i + 1),
			rec.QueryID,
			fmtOptFloat(rec.ElapsedTime, 2),
			fmtOptRows(rec.RowsProcessed, true),
			fmtOptFloat(rec.CPUPercent, 1),
			strconv.Itoa(rec.Incident),
			string(rec.Cause),
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(
		w, "Records: %d, incidents: %d%s\n", len(det.Records), det.NumIncidents, formatCauses(det.CauseCounts)); err != nil {
		return err
	}
	if det.AvgSessions != nil {
		if _, err := fmt.Fprintf(w, "Average sessions: %.1f\n", *det.AvgSessions); err != nil {
			return err
		}
	}
	if len(det.Dropped) > 0 {
		if _, err := fmt.Fprintf(w, "Dropped records: %d\n", len(det.Dropped)); err != nil {
			return err
		}
	}
	return nil
}

func formatCauses(counts map[feats.Cause]int) string {
	if len(counts) == 0 {
		return ""
	}
	causes := make([]string, 0, len(counts))
	for c := range counts {
		if c == feats.CauseNone {
			continue
		}
		causes = append(causes, string(c))
	}
	slices.Sort(causes)
	var ans strings.Builder
	for _, c := range causes {
		fmt.Fprintf(&ans, ", %s: %d", c, counts[feats.Cause(c)])
	}
	return ans.String()
}

var csvHeader = []string{
	"query_id",
	"awr_file",
	"elapsed_time",
	"rows_processed",
	"cpu_percent",
	"incident",
	"cause",
	"query_text",
}

func writeCSV(w io.Writer, det eval.Detection, opts Options) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range opts.records(det) {
		row := []string{
			rec.QueryID,
			rec.SourceFile,
			fmtOptFloat(rec.ElapsedTime, -1),
			fmtOptRows(rec.RowsProcessed, false),
			fmtOptFloat(rec.CPUPercent, -1),
			strconv.Itoa(rec.Incident),
			string(rec.Cause),
			rec.QueryText,
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func writeJSON(w io.Writer, det eval.Detection, opts Options) error {
	out := det
	out.Records = opts.records(det)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode detection: %w", err)
	}
	return nil
}
