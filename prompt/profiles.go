package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed profiles.json
var profilesData []byte

// ModelProfile holds the per-model prompt-construction knobs. Unknown
// models fall back to the "default" profile.
type ModelProfile struct {
	SystemPrefix       string `json:"systemPrefix"`
	SystemSuffix       string `json:"systemSuffix"`
	MaxFewShotExamples int    `json:"maxFewShotExamples"`
	StrictJSONMode     bool   `json:"strictJsonMode"`
	MaxTokens          int    `json:"maxTokens"`
}

const defaultProfileKey = "default"

var (
	profilesOnce sync.Once
	profiles     map[string]ModelProfile
	profilesErr  error
)

func loadProfiles() (map[string]ModelProfile, error) {
	profilesOnce.Do(func() {
		var m map[string]ModelProfile
		if err := json.Unmarshal(profilesData, &m); err != nil {
			profilesErr = fmt.Errorf("prompt: decode profiles.json: %w", err)
			return
		}
		if _, ok := m[defaultProfileKey]; !ok {
			profilesErr = fmt.Errorf("prompt: profiles.json missing %q profile", defaultProfileKey)
			return
		}
		profiles = m
	})
	return profiles, profilesErr
}

// ProfileFor returns the named model's profile, falling back to the
// default profile when model is unrecognized or empty.
func ProfileFor(model string) (ModelProfile, error) {
	all, err := loadProfiles()
	if err != nil {
		return ModelProfile{}, err
	}
	if p, ok := all[model]; ok {
		return p, nil
	}
	return all[defaultProfileKey], nil
}
