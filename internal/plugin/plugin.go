// Package plugin holds the callable tools offered to the model and the
// manager that dispatches the model's function calls to them.
package plugin

import (
	"context"
	"fmt"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
)

// Plugin is one callable tool.
type Plugin interface {
	Declaration() ai.FunctionDeclaration
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Manager implements ai.ToolDispatcher over a fixed set of plugins. Plugins
// are registered at construction; there is no mutable global registry.
type Manager struct {
	plugins map[string]Plugin
	order   []string
}

func NewManager(plugins ...Plugin) *Manager {
	m := &Manager{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		name := p.Declaration().Name
		if _, dup := m.plugins[name]; dup {
			continue
		}
		m.plugins[name] = p
		m.order = append(m.order, name)
	}
	return m
}

func (m *Manager) Declarations() []ai.FunctionDeclaration {
	decls := make([]ai.FunctionDeclaration, 0, len(m.order))
	for _, name := range m.order {
		decls = append(decls, m.plugins[name].Declaration())
	}
	return decls
}

func (m *Manager) Dispatch(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	p, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("plugin: unknown tool %q", name)
	}
	return p.Call(ctx, args)
}

var _ ai.ToolDispatcher = (*Manager)(nil)

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
