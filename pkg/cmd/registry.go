// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/flowion-ai/flowion/pkg/registry"
)

// NewRegistry creates a node registry with plugin nodes loaded. Built-in
// nodes are registered by the caller via RegisterDefaultNodes once their
// collaborators (engine, tool catalog) exist.
func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		if err := reg.LoadNodePlugins(pluginsPath); err != nil {
			panic(err)
		}
	}

	return reg
}
