// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-logr/logr"
)

// NewSource creates a source instance.
type NewSource func(logger logr.Logger, config Config) (Source, error)

var registry = make(map[string]NewSource)

// Register adds a NewSource factory to the global registry under name.
//
// This function is usually called from init() so sources are available by
// name before a daemon reads its configuration.
//
// It will panic if a source with the given name is already registered
func Register(name string, source NewSource) {
	_, exists := registry[name]
	if exists {
		panic(fmt.Sprintf("Source %s already registered", name))
	}
	registry[name] = source
}

// Lookup retrieves the factory registered under name.
func Lookup(name string) (NewSource, error) {
	source, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("source %s not found", name)
	}
	return source, nil
}

// Registered returns the names of all registered sources in sorted order.
func Registered() []string {
	return slices.Sorted(maps.Keys(registry))
}
