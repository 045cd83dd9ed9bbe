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

package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/predict"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/index"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReport = `<html><body>
<table summary="snapshot information">
<tr><th></th><th>Snap Id</th><th>Snap Time</th><th>Sessions</th></tr>
<tr><td>Begin Snap:</td><td>1001</td><td>01-Mar-24 10:00:01</td><td>100</td></tr>
<tr><td>End Snap:</td><td>1002</td><td>01-Mar-24 11:00:03</td><td>110</td></tr>
</table>
<h3 class="awr">SQL ordered by Executions</h3>
<table class="tdiff">
<tr><th>Executions</th><th>Rows Processed</th><th>Elapsed  Time (s)</th><th>%CPU</th><th>SQL Id</th></tr>
<tr><td>1,000</td><td>1,000,000</td><td>500.00</td><td>10.5</td><td>0w2qpuc6u2zsp</td></tr>
<tr><td>20</td><td>40</td><td>1.25</td><td>50.0</td><td>5ur69atw3vfhj</td></tr>
<tr><td>3</td><td>12</td><td>n/a</td><td>1.0</td><td>badelapsed01</td></tr>
</table>
</body></html>`

// ruleModel flags exactly the records violating the labeling rule
type ruleModel struct {
	rule rule.Rule
}

func (m *ruleModel) Train(ctx context.Context, ds eval.Dataset, comment string) error {
	return nil
}

func (m *ruleModel) PredictRow(row []float64) predict.Prediction {
	rec := feats.MetricRecord{
		ElapsedTime:   feats.Float(row[0]),
		RowsProcessed: feats.Int(int64(row[1])),
		CPUPercent:    feats.Float(row[2]),
	}
	if m.rule.Label(rec) == 1 {
		return predict.Prediction{Votes: []float64{0, 1}, PredictedClass: 1}
	}
	return predict.Prediction{Votes: []float64{1, 0}, PredictedClass: 0}
}

func (m *ruleModel) FeatureNames() []string                       { return feats.DefaultFeatureNames }
func (m *ruleModel) LabelingRule() rule.Rule                      { return m.rule }
func (m *ruleModel) SetClassThreshold(v float64)                  {}
func (m *ruleModel) GetClassThreshold() float64                   { return 0.5 }
func (m *ruleModel) SaveToFile(string) error                      { return nil }
func (m *ruleModel) GetInfo() string                              { return "rule model" }
func (m *ruleModel) IsInferenceOnly() bool                        { return true }
func (m *ruleModel) CreateModelFileName(datasetFile string) string { return datasetFile }

func newTestServer(t *testing.T) *gin.Engine {
	return newTestAPI(t).createEngine()
}

func newTestAPI(t *testing.T) *apiServer {
	gin.SetMode(gin.TestMode)
	conf, err := cnf.ParseConfig([]byte(`{"model": {"type": "rf"}}`))
	require.NoError(t, err)
	require.NoError(t, cnf.ValidateAndDefaults(conf))
	clf, err := eval.NewClassifier(&ruleModel{rule: conf.Thresholds.LabelingRule()})
	require.NoError(t, err)
	cache, err := index.OpenInMemory(time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	api, err := newAPIServer(conf, clf, cache, VersionInfo{Version: "1.2.3"})
	require.NoError(t, err)
	return api
}

func postReport(t *testing.T, engine *gin.Engine, report string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("report", "awr_7.html")
	require.NoError(t, err)
	_, err = fw.Write([]byte(report))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestVersion(t *testing.T) {
	engine := newTestServer(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var v VersionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "1.2.3", v.Version)
}

func TestModelInfo(t *testing.T) {
	engine := newTestServer(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info modelInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, feats.DefaultFeatureNames, info.FeatureNames)
	require.NotNil(t, info.Rule.CPU)
	assert.InDelta(t, 250.51, info.Rule.CPU.Intercept, 1e-9)
	assert.NotEmpty(t, info.Fingerprint)
}

func TestDetectReportIsCached(t *testing.T) {
	engine := newTestServer(t)
	w := postReport(t, engine, testReport)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp detectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, "awr_7.html", resp.SourceFile)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, 1, resp.NumIncidents)
	assert.Equal(t, "0w2qpuc6u2zsp", resp.Records[0].QueryID)
	assert.Equal(t, feats.CauseCPU, resp.Records[0].Cause)
	assert.Equal(t, feats.CauseNone, resp.Records[1].Cause)
	assert.Len(t, resp.Dropped, 1)
	require.NotNil(t, resp.AvgSessions)
	assert.Equal(t, 105.0, *resp.AvgSessions)

	w = postReport(t, engine, testReport)
	require.Equal(t, http.StatusOK, w.Code)
	var cached detectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cached))
	assert.True(t, cached.Cached)
	assert.Equal(t, resp.RunID, cached.RunID)
}

func TestDetectErrors(t *testing.T) {
	engine := newTestServer(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postReport(t, engine, "<html><body><p>nothing here</p></body></html>")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDetectRejectsOversizedReport(t *testing.T) {
	api := newTestAPI(t)
	engine := api.createEngine()
	api.maxReportSize = int64(len(testReport)) - 100

	w := postReport(t, engine, testReport)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	// nothing from the rejected upload may be cached
	api.maxReportSize = defaultMaxReportSize
	w = postReport(t, engine, testReport)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp detectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	require.Len(t, resp.Records, 2)
}

func TestPredict(t *testing.T) {
	engine := newTestServer(t)
	body := `[
		{"query_id": "a", "awr_file": "f.html", "elapsed_time": 600, "rows_processed": 1000000},
		{"query_id": "b", "awr_file": "f.html", "elapsed_time": 10, "rows_processed": 10, "cpu_percent": 50},
		{"query_id": "c", "awr_file": "f.html", "elapsed_time": -1}
	]`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp detectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.Equal(t, 1, resp.Records[0].Incident)
	assert.Equal(t, feats.CauseRowsAndCPU, resp.Records[0].Cause)
	assert.Equal(t, 0, resp.Records[1].Incident)
	assert.Len(t, resp.Dropped, 1)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestServer(t)
	postReport(t, engine, testReport)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "awrdetect_detections_total")
}
