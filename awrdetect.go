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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Anasbourzik7/awrdetect/apiserver"
	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/fatih/color"
)

const (
	actionVersion   = "version"
	actionHelp      = "help"
	actionFeaturize = "featurize"
	actionImport    = "import"
	actionFit       = "fit"
	actionLearn     = "learn"
	actionEvaluate  = "evaluate"
	actionDetect    = "detect"
	actionAPIServer = "apiserver"
	actionREPL      = "repl"

	errColor = color.FgHiRed
)

const (
	exitErrorGeneralFailure = iota + 1
	exitErrorInvalidConfig
	exitErrorImportFailed
	exitErrorFailedToOpenStore
	exitErrorFailedToLoadModel
	exitErrorDegenerateTrainingSet
	exitErrorTrainingFailed
	exitErrorDetectionFailed
	exitErrorREPLReading
)

var (
	version   string
	buildDate string
	gitCommit string
)

func topLevelUsage() {
	fmt.Fprintf(os.Stderr, "AWRDETECT - Oracle AWR report incident detection\n")
	fmt.Fprintf(os.Stderr, "------------------------------------------------\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\t%s\t\tshow version info\n", actionVersion)
	fmt.Fprintf(os.Stderr, "\t%s\textract metric records from AWR reports\n", actionFeaturize)
	fmt.Fprintf(os.Stderr, "\t%s\t\timport metric records into the configured store\n", actionImport)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\trefit labeling thresholds from metric records\n", actionFit)
	fmt.Fprintf(os.Stderr, "\t%s\t\tlabel records, train and test a model\n", actionLearn)
	fmt.Fprintf(os.Stderr, "\t%s\tevaluate a model on metric records\n", actionEvaluate)
	fmt.Fprintf(os.Stderr, "\t%s\t\tdetect incidents in an AWR report\n", actionDetect)
	fmt.Fprintf(os.Stderr, "\t%s\trun HTTP API server\n", actionAPIServer)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tinteractive record classification\n", actionREPL)
	fmt.Fprintf(os.Stderr, "\nUse `awrdetect help ACTION` for information about a specific action\n\n")
}

func exitWithError(code int, msg string, err error) {
	if err != nil {
		color.New(errColor).Fprintf(os.Stderr, "%s: %s\n", msg, err)

	} else {
		color.New(errColor).Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

func setup(confPath string) *cnf.Conf {
	conf := cnf.LoadConfig(confPath)
	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	logging.SetupLogging(conf.Logging)
	if err := cnf.ValidateAndDefaults(conf); err != nil {
		exitWithError(exitErrorInvalidConfig, "invalid configuration", err)
	}
	return conf
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

func runActionVersion(ver apiserver.VersionInfo) {
	fmt.Fprintf(os.Stderr, "awrdetect %s\nbuild date: %s\nlast commit: %s\n", ver.Version, ver.BuildDate, ver.GitCommit)
}

func createUsage(fs *flag.FlagSet, args, description string) func() {
	return func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] %s\n",
			filepath.Base(os.Args[0]), fs.Name(), args)
		fmt.Fprintf(os.Stderr, "\n%s\n\nOptions:\n", description)
		fs.PrintDefaults()
	}
}

func requireArgs(fs *flag.FlagSet, n int) {
	if fs.NArg() < n {
		fs.Usage()
		os.Exit(exitErrorGeneralFailure)
	}
}

func main() {
	version := apiserver.VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	cmdVersion := flag.NewFlagSet(actionVersion, flag.ExitOnError)
	cmdVersion.Usage = createUsage(cmdVersion, "", "Show version information")

	cmdHelp := flag.NewFlagSet(actionHelp, flag.ExitOnError)
	cmdHelp.Usage = createUsage(cmdHelp, "[action]", "Show help")

	cmdFeaturize := flag.NewFlagSet(actionFeaturize, flag.ExitOnError)
	featurizeDebug := cmdFeaturize.Bool("debug", false, "print extracted records instead of saving them")
	cmdFeaturize.Usage = createUsage(
		cmdFeaturize, "config.json srcDir|report.html dst.json|dst.msgpack[.gz]",
		"Extract metric records from AWR HTML reports and save them to a records file")

	cmdImport := flag.NewFlagSet(actionImport, flag.ExitOnError)
	importTrainingExclude := cmdImport.Bool("training-exclude", false, "mark imported records as excluded from training")
	cmdImport.Usage = createUsage(
		cmdImport, "config.json records.json|reportsDir",
		"Import metric records (or AWR reports) into the configured store")

	cmdFit := flag.NewFlagSet(actionFit, flag.ExitOnError)
	fitFromDB := cmdFit.Bool("from-db", false, "read records from the configured store")
	cmdFit.Usage = createUsage(
		cmdFit, "config.json [records]",
		"Fit labeling thresholds (OLS of elapsed time against rows/cpu) and print a config snippet")

	cmdLearn := flag.NewFlagSet(actionLearn, flag.ExitOnError)
	learnFromDB := cmdLearn.Bool("from-db", false, "read records from the configured store")
	learnModelType := cmdLearn.String("model", "", "model type (rf, xg); by default, model.type from config is used")
	learnMisclassLog := cmdLearn.String("misclass-log", "", "path to a file to store misclassified test records")
	learnNoStore := cmdLearn.Bool("no-store", false, "do not record the training run in the store")
	learnOut := cmdLearn.String("out", "", "base path of the model file (by default derived from the records file)")
	cmdLearn.Usage = createUsage(
		cmdLearn, "config.json [records]",
		"Label records, split them to training and test sets, train a model and test it")

	cmdEvaluate := flag.NewFlagSet(actionEvaluate, flag.ExitOnError)
	evaluateModelType := cmdEvaluate.String("model", "", "model type (rf, xg); by default, model.type from config is used")
	evaluateMisclassLog := cmdEvaluate.String("misclass-log", "", "path to a file to store misclassified records")
	cmdEvaluate.Usage = createUsage(
		cmdEvaluate, "config.json model_file records",
		"Evaluate model on records using different vote thresholds")

	cmdDetect := flag.NewFlagSet(actionDetect, flag.ExitOnError)
	detectFormat := cmdDetect.String("format", "table", "output format (table, csv, json, parquet)")
	detectOut := cmdDetect.String("out", "", "output file (stdout by default)")
	detectIncidentsOnly := cmdDetect.Bool("incidents-only", false, "write only records flagged as incidents")
	detectTop := cmdDetect.Int("top", 5, "number of worst incidents to summarize (0 to disable)")
	detectHistory := cmdDetect.String("history", "", "a JSONL file to append a detection summary to")
	cmdDetect.Usage = createUsage(
		cmdDetect, "config.json report.html|records.json",
		"Detect incidents in an AWR report (or a records file)")

	cmdAPIServer := flag.NewFlagSet(actionAPIServer, flag.ExitOnError)
	cmdAPIServer.Usage = createUsage(cmdAPIServer, "config.json", "Run HTTP API server")

	cmdREPL := flag.NewFlagSet(actionREPL, flag.ExitOnError)
	cmdREPL.Usage = createUsage(cmdREPL, "config.json", "Interactively classify `elapsed rows cpu` triples")

	action := actionHelp
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch action {
	case actionHelp:
		var subj string
		if len(os.Args) > 2 {
			cmdHelp.Parse(os.Args[2:])
			subj = cmdHelp.Arg(0)
		}
		switch subj {
		case actionVersion:
			cmdVersion.Usage()
		case actionFeaturize:
			cmdFeaturize.Usage()
		case actionImport:
			cmdImport.Usage()
		case actionFit:
			cmdFit.Usage()
		case actionLearn:
			cmdLearn.Usage()
		case actionEvaluate:
			cmdEvaluate.Usage()
		case actionDetect:
			cmdDetect.Usage()
		case actionAPIServer:
			cmdAPIServer.Usage()
		case actionREPL:
			cmdREPL.Usage()
		default:
			topLevelUsage()
		}
	case actionVersion:
		cmdVersion.Parse(os.Args[2:])
		runActionVersion(version)
	case actionFeaturize:
		cmdFeaturize.Parse(os.Args[2:])
		requireArgs(cmdFeaturize, 2)
		conf := setup(cmdFeaturize.Arg(0))
		runActionFeaturize(ctx, conf, cmdFeaturize.Arg(1), cmdFeaturize.Arg(2), *featurizeDebug)
	case actionImport:
		cmdImport.Parse(os.Args[2:])
		requireArgs(cmdImport, 2)
		conf := setup(cmdImport.Arg(0))
		runActionImport(ctx, conf, cmdImport.Arg(1), *importTrainingExclude)
	case actionFit:
		cmdFit.Parse(os.Args[2:])
		requireArgs(cmdFit, 1)
		conf := setup(cmdFit.Arg(0))
		runActionFit(conf, cmdFit.Arg(1), *fitFromDB)
	case actionLearn:
		cmdLearn.Parse(os.Args[2:])
		requireArgs(cmdLearn, 1)
		conf := setup(cmdLearn.Arg(0))
		runActionLearn(ctx, conf, learnArgs{
			srcPath:         cmdLearn.Arg(1),
			fromDB:          *learnFromDB,
			modelType:       *learnModelType,
			misclassLogPath: *learnMisclassLog,
			storeRun:        !*learnNoStore,
			outBase:         *learnOut,
		})
	case actionEvaluate:
		cmdEvaluate.Parse(os.Args[2:])
		requireArgs(cmdEvaluate, 3)
		conf := setup(cmdEvaluate.Arg(0))
		runActionEvaluate(
			ctx, conf, *evaluateModelType, cmdEvaluate.Arg(1), cmdEvaluate.Arg(2), *evaluateMisclassLog)
	case actionDetect:
		cmdDetect.Parse(os.Args[2:])
		requireArgs(cmdDetect, 2)
		conf := setup(cmdDetect.Arg(0))
		runActionDetect(ctx, conf, detectArgs{
			srcPath:       cmdDetect.Arg(1),
			format:        *detectFormat,
			outPath:       *detectOut,
			incidentsOnly: *detectIncidentsOnly,
			topN:          *detectTop,
			historyPath:   *detectHistory,
		})
	case actionAPIServer:
		cmdAPIServer.Parse(os.Args[2:])
		requireArgs(cmdAPIServer, 1)
		conf := setup(cmdAPIServer.Arg(0))
		apiserver.Run(ctx, conf, version)
	case actionREPL:
		cmdREPL.Parse(os.Args[2:])
		requireArgs(cmdREPL, 1)
		conf := setup(cmdREPL.Arg(0))
		runActionREPL(conf)
	default:
		exitWithError(exitErrorGeneralFailure, "Unknown action, please use 'help' to get more information", nil)
	}
}
