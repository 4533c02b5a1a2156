// Copyright 2026 The TenantGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Module is a licensable unit of functionality. Core modules are implicitly
// enabled for every tenant and must not declare dependencies.
type Module struct {
	Code         string   `json:"code" yaml:"code"`
	Name         string   `json:"name" yaml:"name"`
	Category     string   `json:"category" yaml:"category"`
	Core         bool     `json:"core" yaml:"core"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies"`
	Features     []string `json:"features,omitempty" yaml:"features"`
}

// QuotaDef defines a countable resource limit type and its overage policy.
// The overage rate is platform-wide, per quota type.
type QuotaDef struct {
	Type           string          `json:"type" yaml:"type"`
	OverageAllowed bool            `json:"overage_allowed" yaml:"overage_allowed"`
	OverageRate    decimal.Decimal `json:"overage_rate" yaml:"overage_rate"`
}

// Plan is a subscription plan with its quota allocations.
type Plan struct {
	Code         string           `json:"code" yaml:"code"`
	Name         string           `json:"name" yaml:"name"`
	BillingCycle string           `json:"billing_cycle" yaml:"billing_cycle"`
	MonthlyPrice decimal.Decimal  `json:"monthly_price" yaml:"monthly_price"`
	Quotas       map[string]int64 `json:"quotas" yaml:"quotas"`
}

// DependencyCycleError is raised at catalog load time when the module
// dependency graph contains a cycle. It is a startup-fatal condition.
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("module dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// UnknownDependencyError is raised at load time when a module depends on a
// code that is not in the catalog.
type UnknownDependencyError struct {
	Module     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("module %s depends on unknown module %s", e.Module, e.Dependency)
}

// Catalog is the immutable directory of modules, quota types and plans.
// It is loaded once at startup and treated as read-only thereafter; no
// locking is required for concurrent readers.
type Catalog struct {
	modules  map[string]*Module
	ordered  []string            // all module codes in topological order
	closures map[string][]string // transitive dependencies per module, topo order
	quotas   map[string]*QuotaDef
	quotaOrd []string // quota types in declaration order
	plans    map[string]*Plan
}

// New validates the module graph and builds the catalog. Cycle detection and
// orphan dependency detection happen here, never at request time.
func New(modules []Module, quotas []QuotaDef, plans []Plan) (*Catalog, error) {
	c := &Catalog{
		modules:  make(map[string]*Module, len(modules)),
		closures: make(map[string][]string, len(modules)),
		quotas:   make(map[string]*QuotaDef, len(quotas)),
		plans:    make(map[string]*Plan, len(plans)),
	}

	for i := range modules {
		m := modules[i]
		if m.Code == "" {
			return nil, fmt.Errorf("module at index %d has empty code", i)
		}
		if _, dup := c.modules[m.Code]; dup {
			return nil, fmt.Errorf("duplicate module code %s", m.Code)
		}
		if m.Core && len(m.Dependencies) > 0 {
			return nil, fmt.Errorf("core module %s must not declare dependencies", m.Code)
		}
		c.modules[m.Code] = &m
	}

	for code, m := range c.modules {
		for _, dep := range m.Dependencies {
			if _, ok := c.modules[dep]; !ok {
				return nil, &UnknownDependencyError{Module: code, Dependency: dep}
			}
		}
	}

	if err := c.sort(modules); err != nil {
		return nil, err
	}
	c.buildClosures()

	for i := range quotas {
		q := quotas[i]
		if q.Type == "" {
			return nil, fmt.Errorf("quota definition at index %d has empty type", i)
		}
		if q.OverageRate.IsNegative() {
			return nil, fmt.Errorf("quota %s has negative overage rate", q.Type)
		}
		if _, dup := c.quotas[q.Type]; dup {
			return nil, fmt.Errorf("duplicate quota type %s", q.Type)
		}
		c.quotas[q.Type] = &q
		c.quotaOrd = append(c.quotaOrd, q.Type)
	}

	for i := range plans {
		p := plans[i]
		if p.Code == "" {
			return nil, fmt.Errorf("plan at index %d has empty code", i)
		}
		for qt := range p.Quotas {
			if _, ok := c.quotas[qt]; !ok {
				return nil, fmt.Errorf("plan %s allocates unknown quota type %s", p.Code, qt)
			}
		}
		c.plans[p.Code] = &p
	}

	return c, nil
}

// sort orders all module codes topologically (dependencies first) using
// depth-first traversal, detecting cycles along the way.
func (c *Catalog) sort(declared []Module) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.modules))
	c.ordered = c.ordered[:0]

	var visit func(code string, path []string) error
	visit = func(code string, path []string) error {
		switch state[code] {
		case done:
			return nil
		case visiting:
			// Trim the path to the cycle itself for a readable error.
			for i, p := range path {
				if p == code {
					return &DependencyCycleError{Path: append(path[i:], code)}
				}
			}
			return &DependencyCycleError{Path: append(path, code)}
		}
		state[code] = visiting
		path = append(path, code)
		for _, dep := range c.modules[code].Dependencies {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[code] = done
		c.ordered = append(c.ordered, code)
		return nil
	}

	// Iterate declaration order so the topological order is deterministic.
	for _, m := range declared {
		if err := visit(m.Code, nil); err != nil {
			return err
		}
	}
	return nil
}

// buildClosures precomputes the transitive dependency set for every module,
// in topological order. Safe to call only after sort succeeded.
func (c *Catalog) buildClosures() {
	memberOf := make(map[string]map[string]bool, len(c.ordered))
	for _, code := range c.ordered {
		set := make(map[string]bool)
		for _, dep := range c.modules[code].Dependencies {
			set[dep] = true
			for d := range memberOf[dep] {
				set[d] = true
			}
		}
		memberOf[code] = set

		closure := make([]string, 0, len(set))
		for _, candidate := range c.ordered {
			if set[candidate] {
				closure = append(closure, candidate)
			}
		}
		c.closures[code] = closure
	}
}

// Module looks up a module by code.
func (c *Catalog) Module(code string) (*Module, bool) {
	m, ok := c.modules[code]
	return m, ok
}

// Modules returns all modules in topological order.
func (c *Catalog) Modules() []*Module {
	out := make([]*Module, 0, len(c.ordered))
	for _, code := range c.ordered {
		out = append(out, c.modules[code])
	}
	return out
}

// Dependencies returns the transitive dependency closure of a module in
// topological order. The module itself is not included.
func (c *Catalog) Dependencies(code string) []string {
	closure := c.closures[code]
	out := make([]string, len(closure))
	copy(out, closure)
	return out
}

// DependsOn reports whether module depends (transitively) on target.
func (c *Catalog) DependsOn(module, target string) bool {
	for _, dep := range c.closures[module] {
		if dep == target {
			return true
		}
	}
	return false
}

// FeatureModules returns the codes of modules that carry the given feature
// flag, in topological order.
func (c *Catalog) FeatureModules(feature string) []string {
	var out []string
	for _, code := range c.ordered {
		for _, f := range c.modules[code].Features {
			if f == feature {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

// Quota looks up a quota definition by type.
func (c *Catalog) Quota(quotaType string) (*QuotaDef, bool) {
	q, ok := c.quotas[quotaType]
	return q, ok
}

// Quotas returns all quota definitions in declaration order.
func (c *Catalog) Quotas() []*QuotaDef {
	out := make([]*QuotaDef, 0, len(c.quotaOrd))
	for _, t := range c.quotaOrd {
		out = append(out, c.quotas[t])
	}
	return out
}

// Plan looks up a plan by code.
func (c *Catalog) Plan(code string) (*Plan, bool) {
	p, ok := c.plans[code]
	return p, ok
}
