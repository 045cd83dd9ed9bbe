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

package cnf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/eval/rf"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/stats"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	dfltServerReadTimeoutSecs  = 15
	dfltServerWriteTimeoutSecs = 30
	dfltRequestTimeoutSecs     = 20
	dfltListenPort             = 8080
	dfltReportCacheTTLSecs     = 3600 * 24 * 7
	dfltStoreDriver            = stats.DriverSQLite

	dfltRowsSlope     = 2.78e-4
	dfltRowsIntercept = 106.40
	dfltCPUSlope      = -3.06
	dfltCPUIntercept  = 250.51
	DefaultMultiplier = 1.5
)

// ThresholdConf configures one elapsed time threshold of the labeling rule.
// Zero values are replaced by defaults; to switch the criterion off,
// use `disabled`.
type ThresholdConf struct {
	Slope      *float64 `json:"slope"`
	Intercept  *float64 `json:"intercept"`
	Multiplier float64  `json:"multiplier"`
	Disabled   bool     `json:"disabled"`
}

func (tc ThresholdConf) threshold() *rule.Threshold {
	if tc.Disabled {
		return nil
	}
	ans := &rule.Threshold{Multiplier: tc.Multiplier}
	if tc.Slope != nil {
		ans.Slope = *tc.Slope
	}
	if tc.Intercept != nil {
		ans.Intercept = *tc.Intercept
	}
	return ans
}

func (tc *ThresholdConf) setDefaults(name string, slope, intercept float64) {
	if tc.Disabled {
		return
	}
	if tc.Slope == nil {
		tc.Slope = &slope
		log.Warn().Str("threshold", name).Float64("value", slope).Msg("slope not specified, using default")
	}
	if tc.Intercept == nil {
		tc.Intercept = &intercept
		log.Warn().Str("threshold", name).Float64("value", intercept).Msg("intercept not specified, using default")
	}
	if tc.Multiplier == 0 {
		tc.Multiplier = DefaultMultiplier
		log.Warn().Str("threshold", name).Float64("value", DefaultMultiplier).Msg("multiplier not specified, using default")
	}
}

type ThresholdsConf struct {
	Rows ThresholdConf `json:"rows"`
	CPU  ThresholdConf `json:"cpu"`
}

// LabelingRule creates the labeling rule from configured thresholds.
func (tc ThresholdsConf) LabelingRule() rule.Rule {
	return rule.Rule{
		Rows: tc.Rows.threshold(),
		CPU:  tc.CPU.threshold(),
	}
}

type ModelConf struct {
	Path string `json:"path"`
	Type string `json:"type"`

	// VoteThreshold overrides the threshold stored with a model.
	// Zero keeps the stored one.
	VoteThreshold float64 `json:"voteThreshold"`
}

// TrainingVoteThreshold is the threshold a newly trained model
// gets stored with.
func (mc ModelConf) TrainingVoteThreshold() float64 {
	if mc.VoteThreshold == 0 {
		return rf.DefaultVotingThreshold
	}
	return mc.VoteThreshold
}

type TrainingConf struct {
	NumTrees  int     `json:"numTrees"`
	TestRatio float64 `json:"testRatio"`
	Seed      *uint64 `json:"seed"`
	MinRows   int64   `json:"minRows"`
	MaxRows   int64   `json:"maxRows"`
}

func (tc TrainingConf) FitBounds() eval.FitBounds {
	ans := eval.DefaultFitBounds()
	ans.MinRows = tc.MinRows
	ans.MaxRows = tc.MaxRows
	return ans
}

func (tc TrainingConf) SplitSeed() uint64 {
	if tc.Seed == nil {
		return eval.DefaultSplitSeed
	}
	return *tc.Seed
}

type StoreConf struct {
	Driver string          `json:"driver"`
	Path   string          `json:"path"`
	MySQL  stats.MySQLConf `json:"mysql"`
}

// Open opens (and initializes if needed) the configured relational store.
func (sc StoreConf) Open() (*stats.Database, error) {
	var db *stats.Database
	var err error
	switch sc.Driver {
	case stats.DriverSQLite:
		db, err = stats.NewDatabase(sc.Path)
	case stats.DriverMySQL:
		db, err = stats.NewMySQLDatabase(sc.MySQL)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return db, nil
}

type ReportCacheConf struct {
	Path     string `json:"path"`
	TTLSecs  int    `json:"ttlSecs"`
	Disabled bool   `json:"disabled"`
}

func (rc ReportCacheConf) TTL() time.Duration {
	return time.Duration(rc.TTLSecs) * time.Second
}

type Conf struct {
	srcPath                string
	Logging                logging.LoggingConf `json:"logging"`
	ListenAddress          string              `json:"listenAddress"`
	ListenPort             int                 `json:"listenPort"`
	ServerReadTimeoutSecs  int                 `json:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs int                 `json:"serverWriteTimeoutSecs"`
	RequestTimeoutSecs     int                 `json:"requestTimeoutSecs"`
	CorsAllowedOrigins     []string            `json:"corsAllowedOrigins"`
	Model                  ModelConf           `json:"model"`
	Thresholds             ThresholdsConf      `json:"thresholds"`
	Training               TrainingConf        `json:"training"`
	Store                  StoreConf           `json:"store"`
	ReportCache            ReportCacheConf     `json:"reportCache"`
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

// ParseConfig decodes configuration data without applying any defaults.
func ParseConfig(rawData []byte) (*Conf, error) {
	var conf Conf
	if err := json.Unmarshal(rawData, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &conf, nil
}

func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	conf, err := ParseConfig(rawData)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	conf.srcPath = path
	return conf
}

// ValidateAndDefaults fills in missing values (with a warning)
// and returns an error for values which cannot be fixed.
func ValidateAndDefaults(conf *Conf) error {
	if conf.ListenPort == 0 {
		conf.ListenPort = dfltListenPort
		log.Warn().Int("value", dfltListenPort).Msg("listenPort not specified, using default")
	}
	if conf.ServerReadTimeoutSecs == 0 {
		conf.ServerReadTimeoutSecs = dfltServerReadTimeoutSecs
		log.Warn().Msgf(
			"serverReadTimeoutSecs not specified, using default: %d",
			dfltServerReadTimeoutSecs,
		)
	}
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().Msgf(
			"serverWriteTimeoutSecs not specified, using default: %d",
			dfltServerWriteTimeoutSecs,
		)
	}
	if conf.RequestTimeoutSecs == 0 {
		conf.RequestTimeoutSecs = dfltRequestTimeoutSecs
		log.Warn().Msgf("requestTimeoutSecs not specified, using default: %d", dfltRequestTimeoutSecs)
	}

	if conf.Model.Type == "" {
		conf.Model.Type = modload.ModelTypeRF
		log.Warn().Str("value", conf.Model.Type).Msg("model.type not specified, using default")
	}
	switch conf.Model.Type {
	case modload.ModelTypeRF, modload.ModelTypeXG:
	default:
		return fmt.Errorf("invalid model.type: %s", conf.Model.Type)
	}
	if conf.Model.VoteThreshold == 0 {
		log.Info().Msg("model.voteThreshold not specified, stored model threshold will be used")
	}
	if conf.Model.VoteThreshold < 0 || conf.Model.VoteThreshold > 1 {
		return fmt.Errorf("model.voteThreshold must be within [0, 1], got %v", conf.Model.VoteThreshold)
	}

	conf.Thresholds.Rows.setDefaults("rows", dfltRowsSlope, dfltRowsIntercept)
	conf.Thresholds.CPU.setDefaults("cpu", dfltCPUSlope, dfltCPUIntercept)
	if err := conf.Thresholds.LabelingRule().Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if conf.Training.NumTrees == 0 {
		conf.Training.NumTrees = rf.DefaultNumTrees
		log.Warn().Int("value", rf.DefaultNumTrees).Msg("training.numTrees not specified, using default")
	}
	if conf.Training.TestRatio == 0 {
		conf.Training.TestRatio = eval.DefaultTestRatio
		log.Warn().Float64("value", eval.DefaultTestRatio).Msg("training.testRatio not specified, using default")
	}
	if conf.Training.TestRatio < 0 || conf.Training.TestRatio >= 1 {
		return fmt.Errorf("training.testRatio must be within [0, 1), got %v", conf.Training.TestRatio)
	}
	if conf.Training.MaxRows == 0 {
		conf.Training.MaxRows = eval.DefaultMaxRows
		log.Warn().Int64("value", eval.DefaultMaxRows).Msg("training.maxRows not specified, using default")
	}
	if conf.Training.MinRows >= conf.Training.MaxRows {
		return fmt.Errorf("training.minRows must be lower than training.maxRows")
	}

	if conf.Store.Driver == "" {
		conf.Store.Driver = dfltStoreDriver
		log.Warn().Str("value", dfltStoreDriver).Msg("store.driver not specified, using default")
	}
	if conf.Store.Driver == stats.DriverSQLite && conf.Store.Path == "" {
		conf.Store.Path = filepath.Join(filepath.Dir(conf.srcPath), "awrdetect.db")
		log.Warn().Str("value", conf.Store.Path).Msg("store.path not specified, using default")
	}

	if !conf.ReportCache.Disabled {
		if conf.ReportCache.TTLSecs == 0 {
			conf.ReportCache.TTLSecs = dfltReportCacheTTLSecs
			log.Warn().Int("value", dfltReportCacheTTLSecs).Msg("reportCache.ttlSecs not specified, using default")
		}
	}
	return nil
}
