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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `<html><body>
<table summary="snapshot information">
<tr><th></th><th>Snap Id</th><th>Snap Time</th><th>Sessions</th><th>Cursors/Session</th></tr>
<tr><td class="awrnc">Begin Snap:</td><td>1001</td><td>01-Mar-24 10:00:01</td><td>120</td><td>2.1</td></tr>
<tr><td class="awrc">End Snap:</td><td>1002</td><td>01-Mar-24 11:00:03</td><td>131</td><td>2.3</td></tr>
</table>
<h3 class="awr">SQL ordered by Elapsed Time</h3>
<table><tr><th>Elapsed  Time (s)</th><th>SQL Id</th></tr>
<tr><td>1.0</td><td>zzz</td></tr></table>
<h3 class="awr">SQL ordered by Executions</h3>
<ul><li>Total Executions: 1,234</li></ul>
<table class="tdiff">
<tr><th class="awrbg">Executions </th><th class="awrbg">Rows Processed</th><th class="awrbg">Rows per Exec</th>
<th class="awrbg">Elapsed  Time (s)</th><th class="awrbg">%CPU</th><th class="awrbg">%IO</th><th class="awrbg">SQL Id</th></tr>
<tr><td>1,000</td><td>1,000,000</td><td>1000</td><td>500.00</td><td>10,5</td><td>0.0</td><td>0w2qpuc6u2zsp</td></tr>
<tr><td>20</td><td>40</td><td>2</td><td>1.25</td><td>99.1%</td><td>0.0</td><td>5ur69atw3vfhj</td></tr>
<tr><td>3</td><td>12</td><td>4</td><td>n/a</td><td>1.0</td><td>0.0</td><td>badelapsed01</td></tr>
<tr><td>7</td><td></td><td></td><td>3.5</td><td></td><td>0.0</td><td>noRowsNoCpu1</td></tr>
<tr><td>1</td><td>2</td></tr>
</table>
<h3 class="awr">Complete List of SQL Text</h3>
<table>
<tr><th>SQL Id</th><th>SQL Text</th></tr>
<tr><td>0w2qpuc6u2zsp</td><td>SELECT * FROM orders WHERE id = :1</td></tr>
<tr><td>5ur69atw3vfhj</td><td>UPDATE stock SET qty = qty - 1</td></tr>
</table>
</body></html>`

func TestParseReport(t *testing.T) {
	rep, err := ParseReport(strings.NewReader(sampleReport), "awr_1.html")
	require.NoError(t, err)
	require.Len(t, rep.Records, 3)
	require.Len(t, rep.Problems, 1)

	r0 := rep.Records[0]
	assert.Equal(t, "0w2qpuc6u2zsp", r0.QueryID)
	assert.Equal(t, "awr_1.html", r0.SourceFile)
	assert.Equal(t, int64(1_000_000), r0.Rows())
	assert.Equal(t, 500.0, r0.Elapsed())
	assert.Equal(t, 10.5, r0.CPU())
	assert.Equal(t, "SELECT * FROM orders WHERE id = :1", r0.QueryText)

	r1 := rep.Records[1]
	assert.Equal(t, 99.1, r1.CPU())
	assert.Equal(t, int64(40), r1.Rows())

	r2 := rep.Records[2]
	assert.Equal(t, "noRowsNoCpu1", r2.QueryID)
	assert.Nil(t, r2.RowsProcessed)
	assert.Nil(t, r2.CPUPercent)
	assert.Equal(t, 3.5, r2.Elapsed())
	assert.Equal(t, "", r2.QueryText)

	require.NotNil(t, rep.Sessions)
	assert.Equal(t, 120, rep.Sessions.Begin)
	assert.Equal(t, 131, rep.Sessions.End)
	assert.Equal(t, 125.5, rep.Sessions.Average)
}

func TestParseReportDiffTable(t *testing.T) {
	src := `<html><body>
<table class="tdiff">
<tr><th>Executions</th><th>Rows Processed</th><th>Elapsed Time (s)</th><th>% Total CPU</th><th>SQL Id</th></tr>
<tr><td>5</td><td>77</td><td>8.5</td><td>12.0</td><td>abc</td></tr>
</table></body></html>`
	rep, err := ParseReport(strings.NewReader(src), "diff.html")
	require.NoError(t, err)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, 12.0, rep.Records[0].CPU())
	assert.Nil(t, rep.Sessions)
}

func TestParseReportNoMetrics(t *testing.T) {
	_, err := ParseReport(strings.NewReader("<html><body><p>nothing</p></body></html>"), "empty.html")
	assert.True(t, errors.Is(err, ErrNoMetricsTable))
}

func TestImportReportsAndRecordFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte(sampleReport), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte(sampleReport), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.html"), []byte("<p>x</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	reports, err := ImportReports(context.Background(), dir, false)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "a.html", reports[0].SourceFile)
	records := AllRecords(reports)
	assert.Len(t, records, 6)

	out := t.TempDir()
	for _, name := range []string{"recs.json", "recs.msgpack", "recs.json.gz"} {
		path := filepath.Join(out, name)
		require.NoError(t, WriteRecords(path, records))
		loaded, err := ReadRecords(path)
		require.NoError(t, err)
		assert.Equal(t, records, loaded, name)
	}
}

func TestReadOriginalDataJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Data.json")
	src := `[{"query_id": "x1", "awr_file": "awr.html", "rows_processed": 10,
		"elapsed_time": 2.5, "cpu_percent": 50, "query_text": ""}]`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	recs, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, feats.MetricRecord{
		QueryID:       "x1",
		SourceFile:    "awr.html",
		RowsProcessed: feats.Int(10),
		ElapsedTime:   feats.Float(2.5),
		CPUPercent:    feats.Float(50),
	}, recs[0])
}

func TestAppendJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, AppendJSONLine(path, map[string]int{"a": 1}))
	require.NoError(t, AppendJSONLine(path, map[string]int{"a": 2}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}
