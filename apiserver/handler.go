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

package apiserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Anasbourzik7/awrdetect/dataimport"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/index"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	endpointDetect  = "detect"
	endpointPredict = "predict"
)

var errReportTooLarge = errors.New("uploaded report is too large")

func (api *apiServer) handleVersion(ctx *gin.Context) {
	uniresp.WriteJSONResponse(ctx.Writer, api.version)
}

func (api *apiServer) handleModel(ctx *gin.Context) {
	uniresp.WriteJSONResponse(
		ctx.Writer,
		modelInfo{
			Type:           api.conf.Model.Type,
			Path:           api.conf.Model.Path,
			Info:           api.classifier.Info(),
			FeatureNames:   api.classifier.FeatureNames(),
			Rule:           api.classifier.Rule(),
			ClassThreshold: api.classifier.ClassThreshold(),
			Fingerprint:    api.fingerprint,
		},
	)
}

func (api *apiServer) respondDetectionError(ctx *gin.Context, endpoint string, err error) {
	var status int
	var outcome string
	switch {
	case errors.Is(err, errReportTooLarge):
		status, outcome = http.StatusRequestEntityTooLarge, "bad_request"
	case errors.Is(err, context.DeadlineExceeded):
		status, outcome = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, dataimport.ErrNoMetricsTable):
		status, outcome = http.StatusUnprocessableEntity, "bad_request"
	default:
		status, outcome = http.StatusInternalServerError, "failed"
	}
	detectionsTotal.WithLabelValues(endpoint, outcome).Inc()
	uniresp.RespondWithErrorJSON(ctx, err, status)
}

func (api *apiServer) recordDetection(endpoint string, det eval.Detection, t0 time.Time) {
	detectionDuration.WithLabelValues(endpoint).Observe(time.Since(t0).Seconds())
	detectionsTotal.WithLabelValues(endpoint, "ok").Inc()
	for cause, cnt := range det.CauseCounts {
		if cause == feats.CauseNone {
			continue
		}
		incidentsTotal.WithLabelValues(string(cause)).Add(float64(cnt))
	}
}

func (api *apiServer) cachedDetection(key string) (eval.Detection, bool) {
	if api.cache == nil {
		return eval.Detection{}, false
	}
	det, found, err := api.cache.GetDetection(key)
	if err != nil {
		log.Error().Err(err).Msg("failed to read report cache, ignoring")
		return det, false
	}
	if found {
		reportCacheRequests.WithLabelValues("hit").Inc()

	} else {
		reportCacheRequests.WithLabelValues("miss").Inc()
	}
	return det, found
}

func (api *apiServer) handleDetect(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("report")
	if err != nil {
		detectionsTotal.WithLabelValues(endpointDetect, "bad_request").Inc()
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("missing AWR report file (form field 'report'): %w", err), http.StatusBadRequest)
		return
	}
	if fileHeader.Size > api.maxReportSize {
		api.respondDetectionError(
			ctx, endpointDetect, fmt.Errorf("%w: %d bytes (max. %d)", errReportTooLarge, fileHeader.Size, api.maxReportSize))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		api.respondDetectionError(ctx, endpointDetect, fmt.Errorf("failed to open uploaded report: %w", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, api.maxReportSize+1))
	if err != nil {
		api.respondDetectionError(ctx, endpointDetect, fmt.Errorf("failed to read uploaded report: %w", err))
		return
	}
	if int64(len(data)) > api.maxReportSize {
		api.respondDetectionError(
			ctx, endpointDetect, fmt.Errorf("%w: more than %d bytes", errReportTooLarge, api.maxReportSize))
		return
	}

	t0 := time.Now()
	cacheKey := index.ReportKey(data, api.fingerprint)
	if det, ok := api.cachedDetection(cacheKey); ok {
		uniresp.WriteJSONResponse(ctx.Writer, detectionResponse{Detection: det, Cached: true})
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), api.requestTimeout())
	defer cancel()
	report, err := dataimport.ParseReport(bytes.NewReader(data), fileHeader.Filename)
	if err != nil {
		api.respondDetectionError(ctx, endpointDetect, err)
		return
	}
	det, err := dataimport.DetectReport(reqCtx, api.classifier, report)
	if err != nil {
		api.respondDetectionError(ctx, endpointDetect, err)
		return
	}
	api.recordDetection(endpointDetect, det, t0)
	if api.cache != nil {
		if err := api.cache.StoreDetection(cacheKey, det); err != nil {
			log.Error().Err(err).Str("runId", det.RunID).Msg("failed to cache detection")
		}
	}
	uniresp.WriteJSONResponse(ctx.Writer, detectionResponse{Detection: det})
}

func (api *apiServer) handlePredict(ctx *gin.Context) {
	var records []feats.MetricRecord
	if err := ctx.ShouldBindJSON(&records); err != nil {
		detectionsTotal.WithLabelValues(endpointPredict, "bad_request").Inc()
		uniresp.RespondWithErrorJSON(ctx, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	t0 := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), api.requestTimeout())
	defer cancel()
	det, err := eval.Detect(reqCtx, api.classifier, records)
	if err != nil {
		api.respondDetectionError(ctx, endpointPredict, err)
		return
	}
	api.recordDetection(endpointPredict, det, t0)
	uniresp.WriteJSONResponse(ctx.Writer, detectionResponse{Detection: det})
}
