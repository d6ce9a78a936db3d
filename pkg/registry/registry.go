// Package registry provides node factory registration, config validation and
// executor creation for the workflow engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// ErrNodeNotRegistered is returned when no factory exists for a node type.
var ErrNodeNotRegistered = errors.New("node type not registered")

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode registers a built-in node factory under its type tag.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// RegisterCustomNode registers an externally provided node factory. Custom
// factories must use the "custom:" type prefix so they can never shadow a
// built-in type.
func (r *Registry) RegisterCustomNode(factory protocol.NodeFactory) error {
	if !strings.HasPrefix(factory.ID(), models.NodeTypeCustomPrefix) {
		return fmt.Errorf("custom node type '%s' must use the '%s' prefix", factory.ID(), models.NodeTypeCustomPrefix)
	}

	r.nodeFactories[factory.ID()] = factory

	return nil
}

// Resolve returns the factory registered for the given node type.
func (r *Registry) Resolve(nodeType string) (protocol.NodeFactory, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNodeNotRegistered, nodeType)
	}

	return factory, nil
}

// CreateNode validates the node's config against the factory schema and
// builds an executor for it.
func (r *Registry) CreateNode(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	factory, err := r.Resolve(node.Type)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(factory.Schema(), node.Config); err != nil {
		return nil, fmt.Errorf("invalid config for node '%s' (%s): %w", node.ID, node.Type, err)
	}

	return factory.Create(ctx, node)
}

// ValidateNodeConfig checks a config against the schema of the registered
// factory for nodeType without creating an executor.
func (r *Registry) ValidateNodeConfig(nodeType string, config map[string]any) error {
	factory, err := r.Resolve(nodeType)
	if err != nil {
		return err
	}

	return validateConfig(factory.Schema(), config)
}

func validateConfig(schema, config map[string]any) error {
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("config does not match schema: %s", strings.Join(messages, "; "))
	}

	return nil
}

// AvailableNodes returns all registered factories sorted by type tag.
func (r *Registry) AvailableNodes() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// LoadNodePlugins loads node factories from .so files under pluginsPath/nodes
// and registers them as custom nodes.
func (r *Registry) LoadNodePlugins(pluginsPath string) error {
	factories, err := loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
	if err != nil {
		return err
	}

	for _, factory := range factories {
		if err := r.RegisterCustomNode(factory); err != nil {
			return err
		}
	}

	return nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin '%s': %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin '%s' does not export symbol '%s': %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin '%s' symbol '%s' is not a node factory", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
