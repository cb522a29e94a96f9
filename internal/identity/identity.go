// Package identity owns the persona side of a turn: the snapshot rendered
// into the IDENTITY SNAPSHOT section, the minimal skeleton used when
// resolution is unavailable, and the profile store that loads personas from
// disk.
package identity

import (
	"context"
	"fmt"
	"strings"
)

// Snapshot is a point-in-time persona. The orchestrator treats it as an
// immutable input.
type Snapshot struct {
	Name               string   `yaml:"name"`
	Role               string   `yaml:"role"`
	CoreValues         []string `yaml:"core_values"`
	CommunicationStyle string   `yaml:"communication_style"`
	ExpertiseDomains   []string `yaml:"expertise_domains"`
	Invariants         string   `yaml:"invariants"`
	Version            string   `yaml:"version"`
}

// Skeleton is the minimal safe persona substituted when identity resolution
// times out or fails. Constructed once at process start; never mutated.
var Skeleton = Snapshot{
	Name:               "Companion",
	Role:               "supportive general-purpose companion",
	CoreValues:         []string{"honesty", "care", "curiosity"},
	CommunicationStyle: "warm, plain language",
	ExpertiseDomains:   []string{"general conversation"},
	Invariants:         "Stay safe, truthful, and kind.",
	Version:            "skeleton-1",
}

// Provider resolves the persona for a user. Implementations should return
// promptly; the orchestrator bounds the wait and substitutes Skeleton on
// timeout or error.
type Provider interface {
	Resolve(ctx context.Context, userID string) (Snapshot, error)
}

// RenderPrompt renders the snapshot as the IDENTITY SNAPSHOT section body.
func (s Snapshot) RenderPrompt() string {
	return fmt.Sprintf(
		"Name: %s\n"+
			"Role: %s\n"+
			"Core Values: %s\n"+
			"Communication: %s\n"+
			"Expertise: %s\n"+
			"Invariants: %s",
		s.Name,
		s.Role,
		strings.Join(s.CoreValues, ", "),
		s.CommunicationStyle,
		strings.Join(s.ExpertiseDomains, ", "),
		s.Invariants,
	)
}

// mergeWithSkeleton fills any empty field from the skeleton so a sparse
// profile still yields a complete persona.
func mergeWithSkeleton(s Snapshot) Snapshot {
	if s.Name == "" {
		s.Name = Skeleton.Name
	}
	if s.Role == "" {
		s.Role = Skeleton.Role
	}
	if len(s.CoreValues) == 0 {
		s.CoreValues = Skeleton.CoreValues
	}
	if s.CommunicationStyle == "" {
		s.CommunicationStyle = Skeleton.CommunicationStyle
	}
	if len(s.ExpertiseDomains) == 0 {
		s.ExpertiseDomains = Skeleton.ExpertiseDomains
	}
	if s.Invariants == "" {
		s.Invariants = Skeleton.Invariants
	}
	if s.Version == "" {
		s.Version = "unversioned"
	}
	return s
}
