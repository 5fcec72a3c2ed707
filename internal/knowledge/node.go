// Package knowledge defines the domain types for the braind knowledge graph:
// nodes, relationships, the structured property bag, and content validation.
package knowledge

import (
	"errors"
	"fmt"
	"time"
)

// Domain validation errors.
var (
	// ErrInvalidStrength indicates a relationship strength outside [0,1].
	ErrInvalidStrength = errors.New("relationship strength must be in [0,1]")

	// ErrEmptyType indicates a node input without a type tag.
	ErrEmptyType = errors.New("node type cannot be empty")

	// ErrEmptyTarget indicates a relationship without a target node ID.
	ErrEmptyTarget = errors.New("relationship target ID cannot be empty")
)

// Node is the atomic stored unit: text content, its embedding, open metadata
// and outgoing relationships. PartitionID scopes every node to one project;
// it never changes after creation, and the embedding always corresponds to
// Content as it was at creation time.
type Node struct {
	// ID is the opaque unique identifier, generated at creation.
	ID string `json:"id"`

	// Type is a free-form tag ("character", "scene", "GatherItem", ...).
	Type string `json:"type"`

	// PartitionID is the project isolation key. Every query is scoped by it.
	PartitionID string `json:"partition_id"`

	// Content is the text the embedding was derived from.
	Content string `json:"content"`

	// Embedding is the fixed-length vector for Content. Never recomputed
	// implicitly.
	Embedding []float32 `json:"embedding,omitempty"`

	// Properties is the open metadata bag, opaque to the engine.
	Properties Properties `json:"properties,omitempty"`

	// Relationships are directed, typed edges owned by this node.
	Relationships []Relationship `json:"relationships,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Relationship is a directed, typed edge to another node. Strength, when
// set, expresses edge weight in [0,1].
type Relationship struct {
	Type     string   `json:"type"`
	TargetID string   `json:"target_id"`
	Strength *float64 `json:"strength,omitempty"`
}

// Validate checks structural constraints on a relationship.
func (r Relationship) Validate() error {
	if r.TargetID == "" {
		return ErrEmptyTarget
	}
	if r.Type == "" {
		return fmt.Errorf("relationship to %s: type cannot be empty", r.TargetID)
	}
	if r.Strength != nil && (*r.Strength < 0 || *r.Strength > 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidStrength, *r.Strength)
	}
	return nil
}

// NodeInput is the caller-facing shape for node creation. The engine assigns
// the ID and computes the embedding.
type NodeInput struct {
	Type          string         `json:"type"`
	Content       string         `json:"content"`
	Properties    Properties     `json:"properties,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Validate checks structural constraints on the input. Content quality is
// checked separately by ValidateContent.
func (in NodeInput) Validate() error {
	if in.Type == "" {
		return ErrEmptyType
	}
	for _, rel := range in.Relationships {
		if err := rel.Validate(); err != nil {
			return err
		}
	}
	return nil
}
