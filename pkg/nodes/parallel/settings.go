package parallel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowion-ai/flowion/pkg/models"
)

// JoinPolicy controls when a parallel fan-out is considered complete.
type JoinPolicy string

const (
	// JoinAll waits for every target to terminate before the fan-out completes.
	JoinAll JoinPolicy = "all"
	// JoinAny completes the fan-out once a configured number of targets
	// succeed; remaining targets keep running to completion.
	JoinAny JoinPolicy = "any"
)

// Settings carries the fan-out configuration the engine honors when it
// dispatches a parallel node's targets.
type Settings struct {
	Join          JoinPolicy
	AnyCount      int // successes required when Join is JoinAny
	MaxConcurrent int
	Targets       []string // optional subset of target node IDs; empty means all
}

// ParseSettings reads the fan-out settings from a parallel node's config.
// The join key accepts "all" (default) or "any:N" with N >= 1.
func ParseSettings(config map[string]any) (Settings, error) {
	settings := Settings{
		Join:          JoinAll,
		MaxConcurrent: models.DefaultMaxConcurrent,
	}

	if join, ok := config["join"].(string); ok && join != "" {
		policy, anyCount, err := parseJoinPolicy(join)
		if err != nil {
			return Settings{}, err
		}

		settings.Join = policy
		settings.AnyCount = anyCount
	}

	if v, ok := models.ConfigInt(config, "max_concurrent"); ok {
		if v < 1 {
			return Settings{}, errors.New("'max_concurrent' must be at least 1")
		}

		settings.MaxConcurrent = v
	}

	if targetsConfig, ok := config["targets"].([]any); ok {
		for i, targetAny := range targetsConfig {
			target, ok := targetAny.(string)
			if !ok || target == "" {
				return Settings{}, fmt.Errorf("target %d must be a non-empty node ID", i)
			}

			settings.Targets = append(settings.Targets, target)
		}
	}

	return settings, nil
}

// parseJoinPolicy parses "all" or "any:N".
func parseJoinPolicy(join string) (JoinPolicy, int, error) {
	if join == string(JoinAll) {
		return JoinAll, 0, nil
	}

	countStr, ok := strings.CutPrefix(join, string(JoinAny)+":")
	if !ok {
		return "", 0, fmt.Errorf("invalid join policy '%s' (must be 'all' or 'any:N')", join)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		return "", 0, fmt.Errorf("invalid join policy '%s': N must be a positive integer", join)
	}

	return JoinAny, count, nil
}

// IncludesTarget reports whether the given target node participates in the
// fan-out under these settings.
func (s Settings) IncludesTarget(nodeID string) bool {
	if len(s.Targets) == 0 {
		return true
	}

	for _, target := range s.Targets {
		if target == nodeID {
			return true
		}
	}

	return false
}
