// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// MODEL TYPE
// =============================================================================

// ModelType selects which backend model answers a question.
type ModelType int

const (
	// ModelGPT4 is the grounded text model. It is the only model whose
	// conversations are kept by the history service.
	ModelGPT4 ModelType = iota

	// ModelDallE3 generates images.
	ModelDallE3
)

// ModelInfo contains display information about a model.
type ModelInfo struct {
	// ID is the identifier used in configuration and on the command line
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Description is a brief explanation of what the model does
	Description string `json:"description"`

	// Persistable is true when conversations with this model can be saved
	Persistable bool `json:"persistable"`
}

// Models is the registry of selectable models.
var Models = map[ModelType]ModelInfo{
	ModelGPT4: {
		ID:          "gpt-4",
		Name:        "GPT 4",
		Description: "Grounded answers with citations",
		Persistable: true,
	},
	ModelDallE3: {
		ID:          "dall-e-3",
		Name:        "DALL-E 3",
		Description: "Image generation",
	},
}

// Info returns the registry entry for the model.
func (m ModelType) Info() ModelInfo {
	if info, ok := Models[m]; ok {
		return info
	}
	return ModelInfo{ID: fmt.Sprintf("model(%d)", int(m)), Name: "Unknown"}
}

// String returns the configuration identifier of the model.
func (m ModelType) String() string {
	return m.Info().ID
}

// Persistable reports whether conversations with this model go to history.
func (m ModelType) Persistable() bool {
	return m.Info().Persistable
}

// ParseModelType resolves a model identifier or display name.
func ParseModelType(s string) (ModelType, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for mt, info := range Models {
		if needle == info.ID || needle == strings.ToLower(info.Name) {
			return mt, nil
		}
	}
	switch needle {
	case "gpt4", "gpt":
		return ModelGPT4, nil
	case "dalle", "dall-e", "dalle3", "image":
		return ModelDallE3, nil
	}
	return ModelGPT4, fmt.Errorf("unknown model %q (available: %s)", s, strings.Join(ModelIDs(), ", "))
}

// ModelIDs lists the configuration identifiers in display order.
func ModelIDs() []string {
	return []string{ModelGPT4.String(), ModelDallE3.String()}
}

// MarshalText implements encoding.TextMarshaler.
func (m ModelType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ModelType) UnmarshalText(text []byte) error {
	mt, err := ParseModelType(string(text))
	if err != nil {
		return err
	}
	*m = mt
	return nil
}
