// Package registry implements the declarative component registry from spec
// §4.1: the authoritative, ordered view of every capability, infrastructure
// node, context type, data source, and service registered in the process.
//
// The registry never scans disks or imports by side effect. A caller builds
// a ConfigProvider describing what it wants registered and hands it to
// Register; Initialize then resolves every entry's Loader closure in the
// strict order spec §4.1 mandates, so a capability declared before its
// context types exist fails fast with a descriptive error instead of a
// runtime nil-map panic.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/coriolis-labs/conductor/contextstore"
)

// RequiredInfrastructureNodes names the infrastructure nodes the router
// dispatches to by convention (spec §4.1, §4.4-§4.10). Initialize fails if
// any of these is absent after resolution.
var RequiredInfrastructureNodes = []string{
	"task_extraction",
	"classification",
	"orchestration",
	"error_node",
}

// ConfigProvider declares everything one registration pass contributes to
// the registry (spec §4.1 register operation). Multiple ConfigProviders may
// be passed to successive Register calls before Initialize runs; a later
// provider's FrameworkExclusions suppresses names an earlier provider
// declared, letting a deployment override framework defaults without
// editing them.
type ConfigProvider struct {
	Capabilities        []Registration
	ContextClasses      []Registration
	InfrastructureNodes []Registration
	DataSources         []Registration
	Services            []Registration
	// FrameworkExclusions names registrations (by name, across all six
	// lists) to drop from whatever has been registered so far.
	FrameworkExclusions map[string]bool
	// PromptProviderOverrides replaces the default PromptProvider for the
	// named capabilities.
	PromptProviderOverrides []Registration
}

// Registry is the resolved, queryable view produced by Initialize. It is
// safe for concurrent reads after Initialize returns; Register/Initialize
// themselves are not safe to call concurrently with each other.
type Registry struct {
	mu sync.RWMutex

	pendingCapabilities        []Registration
	pendingContextClasses      []Registration
	pendingInfrastructureNodes []Registration
	pendingDataSources         []Registration
	pendingServices            []Registration
	pendingPromptProviders     []Registration

	capabilities        map[string]CapabilityDescriptor
	contextClasses      map[contextstore.Type]ContextClassDescriptor
	infrastructureNodes map[string]InfrastructureNodeDescriptor
	dataSources         map[string]DataSourceDescriptor
	services            map[string]ServiceDescriptor
	promptProviders     map[string]PromptProvider

	capabilityOrder []string
	initialized     bool
}

// New constructs an empty Registry. Call Register one or more times, then
// Initialize, before using any get_* accessor.
func New() *Registry {
	return &Registry{}
}

// Register queues cfg's declarations for resolution by the next Initialize
// call. Calling Register after Initialize has already succeeded returns an
// error: the registry is immutable once resolved (spec §4.1 strict-order
// contract would otherwise be bypassable at runtime).
func (r *Registry) Register(cfg ConfigProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return &ConfigError{Problems: []string{"register called after initialize"}}
	}

	r.pendingCapabilities = append(r.pendingCapabilities, cfg.Capabilities...)
	r.pendingContextClasses = append(r.pendingContextClasses, cfg.ContextClasses...)
	r.pendingInfrastructureNodes = append(r.pendingInfrastructureNodes, cfg.InfrastructureNodes...)
	r.pendingDataSources = append(r.pendingDataSources, cfg.DataSources...)
	r.pendingServices = append(r.pendingServices, cfg.Services...)
	r.pendingPromptProviders = append(r.pendingPromptProviders, cfg.PromptProviderOverrides...)

	if len(cfg.FrameworkExclusions) > 0 {
		r.pendingCapabilities = excludeNamed(r.pendingCapabilities, cfg.FrameworkExclusions)
		r.pendingContextClasses = excludeNamed(r.pendingContextClasses, cfg.FrameworkExclusions)
		r.pendingInfrastructureNodes = excludeNamed(r.pendingInfrastructureNodes, cfg.FrameworkExclusions)
		r.pendingDataSources = excludeNamed(r.pendingDataSources, cfg.FrameworkExclusions)
		r.pendingServices = excludeNamed(r.pendingServices, cfg.FrameworkExclusions)
		r.pendingPromptProviders = excludeNamed(r.pendingPromptProviders, cfg.FrameworkExclusions)
	}
	return nil
}

func excludeNamed(regs []Registration, excluded map[string]bool) []Registration {
	out := regs[:0:0]
	for _, reg := range regs {
		if !excluded[reg.Name] {
			out = append(out, reg)
		}
	}
	return out
}

// Initialize resolves every queued registration in the strict order spec
// §4.1 mandates: context types → data sources → infrastructure nodes →
// services → capabilities → prompt providers. Every problem encountered is
// collected into a single *ConfigError rather than failing on the first one,
// so an operator sees every defect in one pass.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return &ConfigError{Problems: []string{"initialize called twice"}}
	}

	var problems []string

	r.contextClasses = make(map[contextstore.Type]ContextClassDescriptor)
	seenNames := make(map[string]string) // name -> kind, for cross-list uniqueness

	for _, reg := range r.pendingContextClasses {
		if err := checkUnique(seenNames, reg.Name, "context_class"); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("context_class %q: %v", reg.Name, err))
			continue
		}
		desc, ok := resolved.(ContextClassDescriptor)
		if !ok {
			problems = append(problems, fmt.Sprintf("context_class %q: loader returned %T, want ContextClassDescriptor", reg.Name, resolved))
			continue
		}
		r.contextClasses[desc.Type] = desc
	}

	r.dataSources = make(map[string]DataSourceDescriptor)
	for _, reg := range r.pendingDataSources {
		if err := checkUnique(seenNames, reg.Name, "data_source"); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("data_source %q: %v", reg.Name, err))
			continue
		}
		desc, ok := resolved.(DataSourceDescriptor)
		if !ok {
			problems = append(problems, fmt.Sprintf("data_source %q: loader returned %T, want DataSourceDescriptor", reg.Name, resolved))
			continue
		}
		r.dataSources[desc.Name] = desc
	}

	r.infrastructureNodes = make(map[string]InfrastructureNodeDescriptor)
	for _, reg := range r.pendingInfrastructureNodes {
		if err := checkUnique(seenNames, reg.Name, "infrastructure_node"); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("infrastructure_node %q: %v", reg.Name, err))
			continue
		}
		desc, ok := resolved.(InfrastructureNodeDescriptor)
		if !ok {
			problems = append(problems, fmt.Sprintf("infrastructure_node %q: loader returned %T, want InfrastructureNodeDescriptor", reg.Name, resolved))
			continue
		}
		r.infrastructureNodes[desc.Name] = desc
	}

	r.services = make(map[string]ServiceDescriptor)
	for _, reg := range r.pendingServices {
		if err := checkUnique(seenNames, reg.Name, "service"); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("service %q: %v", reg.Name, err))
			continue
		}
		desc, ok := resolved.(ServiceDescriptor)
		if !ok {
			problems = append(problems, fmt.Sprintf("service %q: loader returned %T, want ServiceDescriptor", reg.Name, resolved))
			continue
		}
		r.services[desc.Name] = desc
	}

	r.capabilities = make(map[string]CapabilityDescriptor)
	for _, reg := range r.pendingCapabilities {
		if err := checkUnique(seenNames, reg.Name, "capability"); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("capability %q: %v", reg.Name, err))
			continue
		}
		desc, ok := resolved.(CapabilityDescriptor)
		if !ok {
			problems = append(problems, fmt.Sprintf("capability %q: loader returned %T, want CapabilityDescriptor", reg.Name, resolved))
			continue
		}
		for _, t := range append(append([]contextstore.Type{}, desc.Provides...), desc.Requires...) {
			if _, ok := r.contextClasses[t]; !ok {
				problems = append(problems, (&UnknownContextTypeError{Capability: desc.Name, Type: string(t)}).Error())
			}
		}
		r.capabilities[desc.Name] = desc
	}

	r.promptProviders = make(map[string]PromptProvider)
	for _, reg := range r.pendingPromptProviders {
		resolved, err := reg.Loader()
		if err != nil {
			problems = append(problems, fmt.Sprintf("prompt_provider %q: %v", reg.Name, err))
			continue
		}
		pp, ok := resolved.(PromptProvider)
		if !ok {
			problems = append(problems, fmt.Sprintf("prompt_provider %q: loader returned %T, want PromptProvider", reg.Name, resolved))
			continue
		}
		r.promptProviders[reg.Name] = pp
	}

	for _, name := range RequiredInfrastructureNodes {
		if _, ok := r.infrastructureNodes[name]; !ok {
			problems = append(problems, (&MissingInfrastructureNodeError{Name: name}).Error())
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}

	order := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		order = append(order, name)
	}
	sort.Slice(order, func(i, j int) bool {
		oi, oj := r.capabilities[order[i]].OrchestratorGuide.Order, r.capabilities[order[j]].OrchestratorGuide.Order
		if oi != oj {
			return oi < oj
		}
		return order[i] < order[j]
	})
	r.capabilityOrder = order

	r.initialized = true
	return nil
}

func checkUnique(seen map[string]string, name, kind string) error {
	if name == "" {
		return fmt.Errorf("registry: %s registration missing a name", kind)
	}
	if existingKind, ok := seen[name]; ok {
		return &DuplicateNameError{Name: name, Kind: existingKind}
	}
	seen[name] = kind
	return nil
}

// GetCapability returns the resolved descriptor for name.
func (r *Registry) GetCapability(name string) (CapabilityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.capabilities[name]
	return d, ok
}

// GetAllCapabilities returns every resolved capability descriptor in
// orchestrator presentation order (spec §3 OrchestratorGuide.order).
func (r *Registry) GetAllCapabilities() []CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CapabilityDescriptor, 0, len(r.capabilityOrder))
	for _, name := range r.capabilityOrder {
		out = append(out, r.capabilities[name])
	}
	return out
}

// GetAlwaysActiveCapabilityNames returns the set of capability names the
// classification node seeds active_capabilities with unconditionally (spec
// §4.6 output delta).
func (r *Registry) GetAlwaysActiveCapabilityNames() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool)
	for name, d := range r.capabilities {
		if d.AlwaysActive {
			out[name] = true
		}
	}
	return out
}

// GetContextClass returns the resolved descriptor for a context type.
func (r *Registry) GetContextClass(t contextstore.Type) (ContextClassDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.contextClasses[t]
	return d, ok
}

// SchemaFor implements contextstore.SchemaLookup over the resolved context
// classes, letting a contextstore.Store be constructed directly from a
// Registry.
func (r *Registry) SchemaFor(t contextstore.Type) (*jsonschema.Schema, bool) {
	d, ok := r.GetContextClass(t)
	if !ok {
		return nil, false
	}
	return d.Schema, true
}

// GetNode returns the resolved infrastructure node function for name.
func (r *Registry) GetNode(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.infrastructureNodes[name]
	if !ok {
		return nil, false
	}
	return d.Node, true
}

// GetDataSource returns the resolved data source for name.
func (r *Registry) GetDataSource(name string) (DataSourceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dataSources[name]
	return d, ok
}

// GetService returns the resolved service for name.
func (r *Registry) GetService(name string) (ServiceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.services[name]
	return d, ok
}

// PromptProviderFor returns the override PromptProvider for a capability
// name, if one was registered.
func (r *Registry) PromptProviderFor(capability string) (PromptProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pp, ok := r.promptProviders[capability]
	return pp, ok
}

// exportDoc is the shape export() renders: an operator-facing snapshot of
// everything the registry resolved, useful for a `conductorctl registry dump`
// style command (SPEC_FULL §11.7).
type exportDoc struct {
	Capabilities        []exportCapability `json:"capabilities"`
	ContextClasses      []string           `json:"context_classes"`
	InfrastructureNodes []string           `json:"infrastructure_nodes"`
	DataSources         []string           `json:"data_sources"`
	Services            []string           `json:"services"`
}

type exportCapability struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Provides     []string `json:"provides"`
	Requires     []string `json:"requires"`
	AlwaysActive bool     `json:"always_active"`
}

// Export renders the resolved registry as JSON (spec §4.1 export operation).
func (r *Registry) Export() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := exportDoc{}
	for _, name := range r.capabilityOrder {
		d := r.capabilities[name]
		doc.Capabilities = append(doc.Capabilities, exportCapability{
			Name:         d.Name,
			Description:  d.Description,
			Provides:     typesToStrings(d.Provides),
			Requires:     typesToStrings(d.Requires),
			AlwaysActive: d.AlwaysActive,
		})
	}
	for t := range r.contextClasses {
		doc.ContextClasses = append(doc.ContextClasses, string(t))
	}
	sort.Strings(doc.ContextClasses)
	for n := range r.infrastructureNodes {
		doc.InfrastructureNodes = append(doc.InfrastructureNodes, n)
	}
	sort.Strings(doc.InfrastructureNodes)
	for n := range r.dataSources {
		doc.DataSources = append(doc.DataSources, n)
	}
	sort.Strings(doc.DataSources)
	for n := range r.services {
		doc.Services = append(doc.Services, n)
	}
	sort.Strings(doc.Services)

	return json.MarshalIndent(doc, "", "  ")
}

func typesToStrings(ts []contextstore.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
