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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/dataimport"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/eval/rule"
	"github.com/Anasbourzik7/awrdetect/export"
	"github.com/Anasbourzik7/awrdetect/stats"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

// loadRecords reads records either from a records file, from AWR report(s)
// or, in case fromDB is set, from the configured store (records excluded
// from training are skipped).
func loadRecords(ctx context.Context, conf *cnf.Conf, srcPath string, fromDB bool) ([]feats.MetricRecord, error) {
	if fromDB {
		db, err := conf.Store.Open()
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.GetMetricRecords(stats.ListFilter{}.SetTrainingExcluded(false))
	}
	if srcPath == "" {
		return nil, fmt.Errorf("no records source specified")
	}
	if dataimport.IsRecordsPath(srcPath) {
		return dataimport.ReadRecords(srcPath)
	}
	reports, err := dataimport.ImportReports(ctx, srcPath, true)
	if err != nil {
		return nil, err
	}
	return dataimport.AllRecords(reports), nil
}

func runActionFeaturize(ctx context.Context, conf *cnf.Conf, srcPath, dstPath string, debug bool) {
	reports, err := dataimport.ImportReports(ctx, srcPath, !debug)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to extract AWR reports", err)
	}
	records := dataimport.AllRecords(reports)
	var numProblems int
	for _, rep := range reports {
		numProblems += len(rep.Problems)
	}
	log.Info().
		Int("numReports", len(reports)).
		Int("numRecords", len(records)).
		Int("numSkippedRows", numProblems).
		Msg("extracted AWR reports")

	if debug {
		for _, rep := range reports {
			fmt.Printf("%s:\n", color.New(color.FgHiMagenta).Sprint(rep.SourceFile))
			if rep.Sessions != nil {
				fmt.Printf("  sessions: %d -> %d (avg %.1f)\n", rep.Sessions.Begin, rep.Sessions.End, rep.Sessions.Average)
			}
			for _, rec := range rep.Records {
				fmt.Printf(
					"  %s\telapsed=%.2f\trows=%d\tcpu=%.1f\tmissing=%v\n",
					rec.QueryID, rec.Elapsed(), rec.Rows(), rec.CPU(), rec.MissingFields())
			}
			for _, p := range rep.Problems {
				color.New(color.FgYellow).Printf("  skipped: %s\n", p)
			}
		}
		return
	}
	if dstPath == "" {
		exitWithError(exitErrorGeneralFailure, "no destination file specified", nil)
	}
	if err := dataimport.WriteRecords(dstPath, records); err != nil {
		exitWithError(exitErrorImportFailed, "failed to save records", err)
	}
	log.Info().Str("file", dstPath).Msg("saved records")
}

func runActionImport(ctx context.Context, conf *cnf.Conf, srcPath string, trainingExclude bool) {
	records, err := loadRecords(ctx, conf, srcPath, false)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to load records", err)
	}
	db, err := conf.Store.Open()
	if err != nil {
		exitWithError(exitErrorFailedToOpenStore, "failed to open store", err)
	}
	defer db.Close()
	numImported, err := db.AddRecords(ctx, records)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to import records", err)
	}
	if trainingExclude {
		sources := make(map[string]bool)
		for _, rec := range records {
			sources[rec.SourceFile] = true
		}
		for src := range sources {
			if _, err := db.SetTrainingExclude(src, true); err != nil {
				exitWithError(exitErrorImportFailed, "failed to exclude records from training", err)
			}
		}
	}
	log.Info().
		Int("numRecords", len(records)).
		Int("numImported", numImported).
		Str("driver", conf.Store.Driver).
		Msg("imported records")
}

type axisFit struct {
	Threshold rule.Threshold
	Stats     rule.FitStats
}

func fitAxis(builder *eval.DatasetBuilder, records []feats.MetricRecord, axis eval.Axis, multiplier float64) (axisFit, error) {
	if multiplier == 0 {
		multiplier = cnf.DefaultMultiplier
	}
	xs, ys := builder.FitSubset(records, axis)
	th, st, err := rule.Fit(xs, ys, multiplier)
	if err != nil {
		return axisFit{}, fmt.Errorf("failed to fit %s threshold: %w", axis, err)
	}
	return axisFit{Threshold: th, Stats: st}, nil
}

func thresholdConf(th rule.Threshold) cnf.ThresholdConf {
	return cnf.ThresholdConf{
		Slope:      &th.Slope,
		Intercept:  &th.Intercept,
		Multiplier: th.Multiplier,
	}
}

func runActionFit(conf *cnf.Conf, srcPath string, fromDB bool) {
	records, err := loadRecords(context.Background(), conf, srcPath, fromDB)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to load records", err)
	}
	builder, err := eval.NewDatasetBuilder(
		feats.DefaultFeatureNames, conf.Thresholds.LabelingRule(), conf.Training.FitBounds())
	if err != nil {
		exitWithError(exitErrorInvalidConfig, "failed to create dataset builder", err)
	}
	rowsFit, err := fitAxis(builder, records, eval.AxisRows, conf.Thresholds.Rows.Multiplier)
	if err != nil {
		exitWithError(exitErrorGeneralFailure, "threshold fitting failed", err)
	}
	cpuFit, err := fitAxis(builder, records, eval.AxisCPU, conf.Thresholds.CPU.Multiplier)
	if err != nil {
		exitWithError(exitErrorGeneralFailure, "threshold fitting failed", err)
	}
	titleColor := color.New(color.FgHiMagenta).SprintFunc()
	for _, item := range []struct {
		name string
		fit  axisFit
	}{{"rows", rowsFit}, {"cpu", cpuFit}} {
		fmt.Printf(
			"%s: %s\n\tslope: %.6e, intercept: %.4f, R²: %.4f, points: %d\n",
			titleColor(item.name), item.fit.Threshold, item.fit.Threshold.Slope, item.fit.Threshold.Intercept,
			item.fit.Stats.RSquared, item.fit.Stats.NumPoints)
	}
	snippet := map[string]cnf.ThresholdsConf{
		"thresholds": {
			Rows: thresholdConf(rowsFit.Threshold),
			CPU:  thresholdConf(cpuFit.Threshold),
		},
	}
	data, err := json.MarshalIndent(snippet, "", "  ")
	if err != nil {
		exitWithError(exitErrorGeneralFailure, "failed to encode config snippet", err)
	}
	fmt.Printf("\nconfig snippet:\n%s\n", data)
}

type detectArgs struct {
	srcPath       string
	format        string
	outPath       string
	incidentsOnly bool
	topN          int
	historyPath   string
}

// detectionSummary is a history entry of a single detection
type detectionSummary struct {
	RunID        string              `json:"runId"`
	SourceFile   string              `json:"sourceFile"`
	Created      time.Time           `json:"created"`
	Model        string              `json:"model"`
	NumRecords   int                 `json:"numRecords"`
	NumIncidents int                 `json:"numIncidents"`
	CauseCounts  map[feats.Cause]int `json:"causeCounts"`
	AvgSessions  *float64            `json:"avgSessions,omitempty"`
}

func loadDetectionInput(srcPath string) (dataimport.Report, error) {
	if dataimport.IsRecordsPath(srcPath) {
		records, err := dataimport.ReadRecords(srcPath)
		if err != nil {
			return dataimport.Report{}, err
		}
		return dataimport.Report{SourceFile: srcPath, Records: records}, nil
	}
	return dataimport.ParseReportFile(srcPath)
}

func printTopIncidents(det eval.Detection, r rule.Rule, topN int) {
	top := stats.NewTopRecords(topN)
	for _, rec := range det.Incidents() {
		top.TryAdd(rec, r.Excess(rec.Filled()))
	}
	if top.Len() == 0 {
		return
	}
	incColor := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "\nworst incidents (by elapsed time over threshold):\n")
	for i, item := range top.Items() {
		fmt.Fprintf(
			os.Stderr, "  %d. %s\t+%.2fs\t%s\n", i+1, incColor(item.Record.QueryID), item.Score, item.Record.Cause)
	}
}

func runActionDetect(ctx context.Context, conf *cnf.Conf, args detectArgs) {
	format, err := export.ParseFormat(args.format)
	if err != nil {
		exitWithError(exitErrorGeneralFailure, "invalid output format", err)
	}
	isFile, err := fs.IsFile(args.srcPath)
	if err != nil || !isFile {
		exitWithError(exitErrorGeneralFailure, fmt.Sprintf("input file %s not found", args.srcPath), err)
	}
	clf, err := modload.LoadClassifier(conf.Model.Type, conf.Model.Path, conf.Model.VoteThreshold)
	if err != nil {
		exitWithError(exitErrorFailedToLoadModel, "failed to load model", err)
	}
	eval.CheckRuleConsistency(clf.Rule(), conf.Thresholds.LabelingRule())

	report, err := loadDetectionInput(args.srcPath)
	if err != nil {
		exitWithError(exitErrorImportFailed, "failed to read input", err)
	}
	det, err := dataimport.DetectReport(ctx, clf, report)
	if err != nil {
		exitWithError(exitErrorDetectionFailed, "detection failed", err)
	}
	if err := export.WriteFile(args.outPath, det, format, export.Options{IncidentsOnly: args.incidentsOnly}); err != nil {
		exitWithError(exitErrorDetectionFailed, "failed to write result", err)
	}
	if args.topN > 0 {
		printTopIncidents(det, clf.Rule(), args.topN)
	}
	if args.historyPath != "" {
		summary := detectionSummary{
			RunID:        det.RunID,
			SourceFile:   det.SourceFile,
			Created:      det.Created,
			Model:        det.Model,
			NumRecords:   len(det.Records),
			NumIncidents: det.NumIncidents,
			CauseCounts:  det.CauseCounts,
			AvgSessions:  det.AvgSessions,
		}
		if err := dataimport.AppendJSONLine(args.historyPath, summary); err != nil {
			log.Error().Err(err).Msg("failed to store detection history")
		}
	}
}
