package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed examples.json
var examplesData []byte

type fewShotExample struct {
	Query  string `json:"query"`
	Output string `json:"output"`
}

var (
	examplesOnce sync.Once
	examples     map[string][]fewShotExample
	examplesErr  error
)

func loadExamples() (map[string][]fewShotExample, error) {
	examplesOnce.Do(func() {
		var m map[string][]fewShotExample
		if err := json.Unmarshal(examplesData, &m); err != nil {
			examplesErr = fmt.Errorf("prompt: decode examples.json: %w", err)
			return
		}
		examples = m
	})
	return examples, examplesErr
}

func fewShotFor(t Type, limit int) ([]fewShotExample, error) {
	all, err := loadExamples()
	if err != nil {
		return nil, err
	}
	ex := all[t.String()]
	if limit >= 0 && len(ex) > limit {
		ex = ex[:limit]
	}
	return ex, nil
}
