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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Anasbourzik7/awrdetect/cnf"
	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/Anasbourzik7/awrdetect/eval/modload"
	"github.com/Anasbourzik7/awrdetect/eval/modutils"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

func ensureConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(homeDir, ".config", "awrdetect")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}

// parseREPLRecord parses `elapsed [rows [cpu]]`; a missing value
// can be also written as `-`.
func parseREPLRecord(input string) (feats.MetricRecord, error) {
	rec := feats.MetricRecord{QueryID: "repl"}
	items := strings.Fields(input)
	if len(items) == 0 || len(items) > 3 {
		return rec, fmt.Errorf("expected `elapsed [rows [cpu]]`")
	}
	for i, item := range items {
		if item == "-" {
			continue
		}
		switch i {
		case 0:
			v, err := strconv.ParseFloat(item, 64)
			if err != nil {
				return rec, fmt.Errorf("invalid elapsed time: %w", err)
			}
			rec.ElapsedTime = &v
		case 1:
			v, err := strconv.ParseInt(strings.ReplaceAll(item, "_", ""), 10, 64)
			if err != nil {
				return rec, fmt.Errorf("invalid rows processed: %w", err)
			}
			rec.RowsProcessed = &v
		case 2:
			v, err := strconv.ParseFloat(strings.TrimSuffix(item, "%"), 64)
			if err != nil {
				return rec, fmt.Errorf("invalid cpu percent: %w", err)
			}
			rec.CPUPercent = &v
		}
	}
	return rec, nil
}

func runActionREPL(conf *cnf.Conf) {
	mlModel, err := modload.GetMLModel(conf.Model.Type, conf.Model.Path)
	if err != nil {
		exitWithError(exitErrorFailedToLoadModel, "failed to load model", err)
	}
	if conf.Model.VoteThreshold > 0 {
		mlModel.SetClassThreshold(conf.Model.VoteThreshold)
	}
	voteThreshold := mlModel.GetClassThreshold()
	clf, err := eval.NewClassifier(mlModel)
	if err != nil {
		exitWithError(exitErrorFailedToLoadModel, "failed to load model", err)
	}
	labelingRule := eval.CheckRuleConsistency(clf.Rule(), conf.Thresholds.LabelingRule())

	titleColor := color.New(color.FgHiMagenta).SprintFunc()
	greenColor := color.New(color.FgGreen).SprintFunc()
	redColor := color.New(color.FgRed).SprintFunc()

	fmt.Println("AWR incident classifier")
	fmt.Println("Commands:")
	fmt.Println("  <elapsed> [rows] [cpu]  - classify a record (use '-' for a missing value)")
	fmt.Println("  set vote <value 0..1>   - set model vote threshold")
	fmt.Println("  setup                   - view current settings")
	fmt.Println("  exit                    - Exit REPL")
	fmt.Println()

	var historyFile string
	historyDir, err := ensureConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("failed to determine user config directory - falling back to session-local history")

	} else {
		historyFile = filepath.Join(historyDir, "repl-history.txt")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      color.New(color.FgHiGreen).Sprintf("/awr> "),
		HistoryFile: historyFile,
	})
	if err != nil {
		exitWithError(exitErrorREPLReading, "Error initializing readline", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if input == "exit" {
			fmt.Println("Goodbye!")
			break
		}

		if strings.HasPrefix(input, "set ") {
			parsedInput := strings.Fields(input)[1:]
			switch parsedInput[0] {
			case "vote":
				if len(parsedInput) == 2 {
					v, err := strconv.ParseFloat(parsedInput[1], 64)
					if err != nil || v < 0 || v > 1 {
						fmt.Println("failed to parse number")
						continue
					}
					voteThreshold = v
					mlModel.SetClassThreshold(voteThreshold)

				} else {
					fmt.Println("Usage: set vote <value 0..1>")
				}
			default:
				fmt.Println("Unknown 'set' command")
			}
			continue

		} else if input == "setup" {
			fmt.Printf("%s:\t\t%s (%s)\n", titleColor("Model"), conf.Model.Path, clf.Info())
			fmt.Printf("%s:\t%.2f\n", titleColor("Vote threshold"), voteThreshold)
			fmt.Printf("%s:\t%s\n", titleColor("Labeling rule"), labelingRule)
			continue
		}

		rec, err := parseREPLRecord(input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if err := eval.ValidateRecord(rec); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		preds, err := clf.Predictions([]feats.MetricRecord{rec})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		annotated, err := eval.Annotate([]feats.MetricRecord{rec}, []int{preds[0].PredictedClass}, labelingRule)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		filled := rec.Filled()
		if labelingRule.Rows != nil {
			fmt.Printf("%s: %.2f s at %s rows\n",
				titleColor("rows threshold"), labelingRule.Rows.At(float64(filled.Rows())),
				modutils.FormatRoughSize(filled.Rows()))
		}
		if labelingRule.CPU != nil {
			fmt.Printf("%s: %.2f s at %.1f %%CPU\n",
				titleColor("cpu threshold"), labelingRule.CPU.At(filled.CPU()), filled.CPU())
		}
		fmt.Printf("%s: %d\n", titleColor("rule label"), labelingRule.Label(rec))
		var predResult string
		if annotated[0].Incident == 1 {
			predResult = redColor(fmt.Sprintf("incident (%s)", annotated[0].Cause))

		} else {
			predResult = greenColor("no incident")
		}
		fmt.Printf("model prediction: %s\n", predResult)
		fmt.Printf("incident vote: %.2f\n", preds[0].IncidentVote())
	}
}
