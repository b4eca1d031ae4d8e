package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"reputationkit/core"
)

// LoadRuleset reads an engine ruleset from YAML. Fields the file omits keep
// their stock values, so a file may tune a single award.
func LoadRuleset(path string) (core.Ruleset, error) {
	b, err := os.ReadFile(path) // #nosec G304 - operator supplied ruleset path
	if err != nil {
		return core.Ruleset{}, fmt.Errorf("read ruleset: %w", err)
	}
	return ParseRuleset(b)
}

// ParseRuleset decodes and validates a YAML ruleset.
func ParseRuleset(data []byte) (core.Ruleset, error) {
	rules := core.DefaultRuleset()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return core.Ruleset{}, fmt.Errorf("decode ruleset: %w", err)
	}
	if err := ValidateRuleset(rules); err != nil {
		return core.Ruleset{}, err
	}
	return rules, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRuleset checks field constraints and the orderings the engine
// relies on.
func ValidateRuleset(r core.Ruleset) error {
	var errs []string
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid ruleset: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	if len(r.LevelThresholds) > 0 && r.LevelThresholds[0] != 0 {
		errs = append(errs, "level_thresholds must start at 0")
	}
	for i := 1; i < len(r.LevelThresholds); i++ {
		if r.LevelThresholds[i] <= r.LevelThresholds[i-1] {
			errs = append(errs, fmt.Sprintf("level_thresholds must be strictly increasing at index %d", i))
		}
	}
	for i := 1; i < len(r.Review.LengthSteps); i++ {
		if r.Review.LengthSteps[i].MinLength <= r.Review.LengthSteps[i-1].MinLength {
			errs = append(errs, fmt.Sprintf("review.length_steps must be sorted by min_length at index %d", i))
		}
	}
	if _, ok := r.Awards[core.ActionReviewCreated]; ok {
		errs = append(errs, "awards: review_created is scored by the review section")
	}
	seen := map[string]bool{}
	for _, b := range r.Badges {
		if seen[b.Name] {
			errs = append(errs, fmt.Sprintf("badges: duplicate name %q", b.Name))
		}
		seen[b.Name] = true
	}
	if len(errs) > 0 {
		return errors.New("invalid ruleset: " + strings.Join(errs, "; "))
	}
	return nil
}
