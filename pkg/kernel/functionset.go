package kernel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Plugin groups functions under one name. Lookups are case-insensitive.
type Plugin struct {
	Name string

	mu        sync.RWMutex
	functions map[string]Function
}

func newPlugin(name string) *Plugin {
	return &Plugin{Name: name, functions: make(map[string]Function)}
}

func (p *Plugin) add(fn Function) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.functions[strings.ToLower(fn.Name())] = fn
}

// Function returns the function called name.
func (p *Plugin) Function(name string) (Function, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn, ok := p.functions[strings.ToLower(name)]
	return fn, ok
}

// Functions returns the plugin's functions sorted by name.
func (p *Plugin) Functions() []Function {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fns := make([]Function, 0, len(p.functions))
	for _, fn := range p.functions {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })
	return fns
}

// Len returns the number of functions.
func (p *Plugin) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.functions)
}

// FunctionSet is the registry of functions visible to one request.
type FunctionSet struct {
	kernel *Kernel

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// Kernel returns the kernel the set's semantic functions complete through.
func (s *FunctionSet) Kernel() *Kernel {
	return s.kernel
}

// Add registers fn under its plugin, replacing a function of the same name.
func (s *FunctionSet) Add(fn Function) {
	s.plugin(fn.Plugin()).add(fn)
}

// ImportPlugin registers fns under plugin name and returns the plugin.
func (s *FunctionSet) ImportPlugin(name string, fns ...Function) *Plugin {
	p := s.plugin(name)
	for _, fn := range fns {
		p.add(fn)
	}
	return p
}

// plugin returns the named plugin, creating it if needed.
func (s *FunctionSet) plugin(name string) *Plugin {
	key := strings.ToLower(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[key]
	if !ok {
		p = newPlugin(name)
		s.plugins[key] = p
	}
	return p
}

// Plugin returns the named plugin.
func (s *FunctionSet) Plugin(name string) (*Plugin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plugins[strings.ToLower(name)]
	return p, ok
}

// Function resolves plugin.name. An empty plugin matches name across all
// plugins and fails if the name is ambiguous.
func (s *FunctionSet) Function(plugin, name string) (Function, error) {
	if plugin != "" {
		p, ok := s.Plugin(plugin)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, plugin)
		}
		fn, ok := p.Function(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrFunctionNotFound, plugin, name)
		}
		return fn, nil
	}

	var matches []Function
	for _, p := range s.Plugins() {
		if fn, ok := p.Function(name); ok {
			matches = append(matches, fn)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s is ambiguous across %d plugins", ErrFunctionNotFound, name, len(matches))
	}
}

// Plugins returns the plugins sorted by name.
func (s *FunctionSet) Plugins() []*Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps := make([]*Plugin, 0, len(s.plugins))
	for _, p := range s.plugins {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

// Functions returns every function sorted by plugin then name.
func (s *FunctionSet) Functions() []Function {
	var fns []Function
	for _, p := range s.Plugins() {
		fns = append(fns, p.Functions()...)
	}
	return fns
}

// Len returns the total number of functions.
func (s *FunctionSet) Len() int {
	n := 0
	for _, p := range s.Plugins() {
		n += p.Len()
	}
	return n
}
