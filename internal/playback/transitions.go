/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTransition is used for unknown or empty transition names.
const DefaultTransition = "fade"

//go:embed transitions.yaml
var transitionsYAML []byte

// Transition names the enter, active and exit animation classes of an effect.
type Transition struct {
	Name   string `yaml:"-" json:"name"`
	Enter  string `yaml:"enter" json:"enter"`
	Active string `yaml:"active" json:"active"`
	Exit   string `yaml:"exit" json:"exit"`
}

var transitions = mustLoadTransitions(transitionsYAML)

func loadTransitions(data []byte) (map[string]Transition, error) {
	raw := make(map[string]Transition)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse transitions: %w", err)
	}
	if _, ok := raw[DefaultTransition]; !ok {
		return nil, fmt.Errorf("transitions: missing %q", DefaultTransition)
	}
	for name, t := range raw {
		t.Name = name
		raw[name] = t
	}
	return raw, nil
}

func mustLoadTransitions(data []byte) map[string]Transition {
	t, err := loadTransitions(data)
	if err != nil {
		panic(err)
	}
	return t
}

// LookupTransition returns the named transition, falling back to fade.
func LookupTransition(name string) Transition {
	if t, ok := transitions[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return transitions[DefaultTransition]
}

// IsTransition reports whether name is a known transition.
func IsTransition(name string) bool {
	_, ok := transitions[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// TransitionNames lists the known transitions in alphabetical order.
func TransitionNames() []string {
	names := make([]string, 0, len(transitions))
	for name := range transitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
