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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/index"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultMaxReportSize = 64 << 20

type apiServer struct {
	conf        *cnf.Conf
	server      *http.Server
	classifier  *eval.Classifier
	cache       *index.DB
	fingerprint string
	version     VersionInfo

	// maxReportSize is the largest accepted AWR upload in bytes
	maxReportSize int64
}

func (api *apiServer) requestTimeout() time.Duration {
	return time.Duration(api.conf.RequestTimeoutSecs) * time.Second
}

func (api *apiServer) createEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware())
	engine.Use(uniresp.AlwaysJSONContentType())
	engine.Use(corsMiddleware(api.conf))
	engine.NoMethod(uniresp.NoMethodHandler)
	engine.NoRoute(uniresp.NotFoundHandler)
	engine.MaxMultipartMemory = defaultMaxReportSize

	engine.GET("/version", api.handleVersion)
	engine.GET("/model", api.handleModel)
	engine.POST("/detect", api.handleDetect)
	engine.POST("/predict", api.handlePredict)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

func (api *apiServer) Start(ctx context.Context) {
	if !api.conf.Logging.Level.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().Msgf("starting to listen at %s:%d", api.conf.ListenAddress, api.conf.ListenPort)
	api.server = &http.Server{
		Handler:      api.createEngine(),
		Addr:         fmt.Sprintf("%s:%d", api.conf.ListenAddress, api.conf.ListenPort),
		WriteTimeout: time.Duration(api.conf.ServerWriteTimeoutSecs) * time.Second,
		ReadTimeout:  time.Duration(api.conf.ServerReadTimeoutSecs) * time.Second,
	}
	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
}

func (api *apiServer) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down awrdetect HTTP API server")
	err := api.server.Shutdown(ctx)
	if cerr := api.cache.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("failed to close report cache")
	}
	return err
}

func newAPIServer(conf *cnf.Conf, clf *eval.Classifier, cache *index.DB, version VersionInfo) (*apiServer, error) {
	fp := modelFingerprint(conf.Model, clf)
	if cache != nil {
		if err := cache.SyncModel(fp); err != nil {
			return nil, err
		}
	}
	return &apiServer{
		conf:          conf,
		classifier:    clf,
		cache:         cache,
		fingerprint:   fp,
		version:       version,
		maxReportSize: defaultMaxReportSize,
	}, nil
}

func openReportCache(conf cnf.ReportCacheConf) (*index.DB, error) {
	if conf.Disabled {
		return nil, nil
	}
	if conf.Path == "" {
		log.Warn().Msg("reportCache.path not set, using in-memory cache")
		return index.OpenInMemory(conf.TTL())
	}
	return index.OpenDB(conf.Path, conf.TTL())
}

// Run loads the configured model and serves the HTTP API
// until the context is cancelled.
func Run(
	ctx context.Context,
	conf *cnf.Conf,
	version VersionInfo,
) {
	clf, err := modload.LoadClassifier(conf.Model.Type, conf.Model.Path, conf.Model.VoteThreshold)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading model")
		return
	}
	eval.CheckRuleConsistency(clf.Rule(), conf.Thresholds.LabelingRule())
	log.Info().
		Str("model", clf.Info()).
		Float64("voteThreshold", clf.ClassThreshold()).
		Msg("loaded model")

	cache, err := openReportCache(conf.ReportCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening report cache")
		return
	}
	server, err := newAPIServer(conf, clf, cache, version)
	if err != nil {
		cache.Close()
		log.Fatal().Err(err).Msg("Error initializing API server")
		return
	}

	services := []service{server}
	for _, m := range services {
		m.Start(ctx)
	}
	<-ctx.Done()
	log.Warn().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(srv service) {
			defer wg.Done()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Type("service", srv).Msg("Error shutting down service")
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timed out")
	}
}
