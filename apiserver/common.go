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
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/gin-gonic/gin"
)

type service interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// VersionInfo provides a detailed information about the actual build
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

// ----

type modelInfo struct {
	Type           string    `json:"type"`
	Path           string    `json:"path,omitempty"`
	Info           string    `json:"info"`
	FeatureNames   []string  `json:"featureNames"`
	Rule           rule.Rule `json:"rule"`
	ClassThreshold float64   `json:"classThreshold"`
	Fingerprint    string    `json:"fingerprint"`
}

type detectionResponse struct {
	eval.Detection
	Cached bool `json:"cached"`
}

// modelFingerprint identifies a loaded model so cached
// detections of a different model are never reused.
func modelFingerprint(conf cnf.ModelConf, clf *eval.Classifier) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%v|%s|%s", conf.Type, conf.Path, clf.ClassThreshold(), clf.Info(), clf.Rule())
	if info, err := os.Stat(conf.Path); err == nil {
		fmt.Fprintf(h, "|%d|%d", info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ----

func corsMiddleware(conf *cnf.Conf) gin.HandlerFunc {
	return func(ctx *gin.Context) {

		var allowedOrigin string
		currOrigin := ctx.Request.Header.Get("Origin")
		for _, origin := range conf.CorsAllowedOrigins {
			if currOrigin == origin || origin == "*" {
				allowedOrigin = origin
				break
			}
		}
		if allowedOrigin != "" {
			ctx.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			ctx.Writer.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With",
			)
			ctx.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		}

		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(204)
			return
		}
		ctx.Next()
	}
}
