package harness

import (
	"fmt"
	"path/filepath"
)

// SuiteResult contains results from running every scenario of a directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunDir loads and runs every scenario file in dir. A scenario that cannot
// be loaded or executed counts as failed; RunDir only returns an error when
// dir cannot be listed or holds no scenarios.
func RunDir(dir string) (*SuiteResult, error) {
	files, err := ScenarioFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	res := &SuiteResult{}
	for _, path := range files {
		res.Total++
		name := filepath.Base(path)

		scenario, err := LoadScenario(path)
		if err != nil {
			res.fail(name, path, err.Error())
			continue
		}
		result, err := Run(scenario)
		if err != nil {
			res.fail(scenario.Name, path, err.Error())
			continue
		}
		if !result.Pass {
			res.fail(scenario.Name, path, result.Errors...)
			continue
		}
		res.Passed++
	}
	return res, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Errors: errs})
}
