package services

import (
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/registry"
)

func TestNodeCatalog_Available(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(protocol.Dependencies{})

	catalog := NewNodeCatalog(reg)
	descriptors := catalog.Available()

	require.NotEmpty(t, descriptors)

	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		types = append(types, descriptor.Type)
	}

	assert.True(t, sort.StringsAreSorted(types))
	assert.Contains(t, types, models.NodeTypeStart)
	assert.Contains(t, types, models.NodeTypeConditional)
	assert.Contains(t, types, models.NodeTypeParallel)

	for _, descriptor := range descriptors {
		if descriptor.Type == models.NodeTypeConditional {
			assert.NotEmpty(t, descriptor.Name)
			require.NotNil(t, descriptor.Schema)
			assert.Equal(t, "object", descriptor.Schema["type"])
		}
	}
}
