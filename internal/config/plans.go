package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Plans holds the quota and upload limits of the subscription plans.
type Plans struct {
	// FreeCreationLimit is the number of creations a free user may make.
	FreeCreationLimit int `yaml:"free_creation_limit"`
	// PremiumPlan is the plan key the identity provider reports for paid users.
	PremiumPlan string `yaml:"premium_plan"`
	// MaxImageBytes bounds uploads to the image endpoints.
	MaxImageBytes int64 `yaml:"max_image_bytes"`
	// MaxResumeBytes bounds resume uploads.
	MaxResumeBytes int64 `yaml:"max_resume_bytes"`
}

// DefaultPlans returns the limits used when no plans file is present.
func DefaultPlans() Plans {
	return Plans{
		FreeCreationLimit: 10,
		PremiumPlan:       "premium",
		MaxImageBytes:     10 << 20,
		MaxResumeBytes:    5 << 20,
	}
}

// LoadPlansFromPath reads plan overrides from a YAML file. A missing file
// yields the defaults; zero values in the file keep their default.
func LoadPlansFromPath(path string) (Plans, error) {
	plans := DefaultPlans()
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return plans, nil
		}
		return plans, fmt.Errorf("failed to read plans config: %w", err)
	}

	var override Plans
	if err := yaml.Unmarshal(data, &override); err != nil {
		return plans, fmt.Errorf("failed to parse plans config: %w", err)
	}

	if override.FreeCreationLimit < 0 {
		return plans, fmt.Errorf("plans config: free_creation_limit must not be negative")
	}
	if override.FreeCreationLimit > 0 {
		plans.FreeCreationLimit = override.FreeCreationLimit
	}
	if override.PremiumPlan != "" {
		plans.PremiumPlan = override.PremiumPlan
	}
	if override.MaxImageBytes > 0 {
		plans.MaxImageBytes = override.MaxImageBytes
	}
	if override.MaxResumeBytes > 0 {
		plans.MaxResumeBytes = override.MaxResumeBytes
	}

	return plans, nil
}
