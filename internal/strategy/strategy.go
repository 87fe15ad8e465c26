// Package strategy defines the analysis modes a run can use. Each mode names
// the identification endpoint it calls, whether jobs need a source map,
// whether responses may be served from the request cache, and an optional
// screen that can settle a job locally before any request is made.
package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy is one analysis mode.
type Strategy interface {
	Name() string
	Endpoint() string
	RequiresSourceMap() bool
	Cacheable() bool
	// Screen inspects the resolved content. When ok is false the job is
	// recorded as ignored with reason and no request is sent.
	Screen(source, sourceMap []byte) (reason string, ok bool)
}

// Default is the strategy used when none is configured.
const Default = "without_truths"

type endpointStrategy struct {
	name        string
	endpoint    string
	requiresMap bool
	cacheable   bool
	description string
}

func (s endpointStrategy) Name() string            { return s.name }
func (s endpointStrategy) Endpoint() string        { return s.endpoint }
func (s endpointStrategy) RequiresSourceMap() bool { return s.requiresMap }
func (s endpointStrategy) Cacheable() bool         { return s.cacheable }
func (s endpointStrategy) Description() string     { return s.description }

func (endpointStrategy) Screen([]byte, []byte) (string, bool) { return "", true }

var registry = map[string]Strategy{}

func register(s Strategy) {
	registry[s.Name()] = s
}

func init() {
	for _, s := range []endpointStrategy{
		{"bundler", "/identify/bundler", false, false, "detect the bundler that produced a script"},
		{"bundler_compartments", "/identify/bundler-compartments", true, false, "split a bundle into compartments using its source map"},
		{"versions", "/identify/versions/no_compartments", true, true, "identify library versions"},
		{"versions_compartments", "/identify/versions/compartments", true, true, "identify library versions per compartment"},
		{"library_strings", "/identify/libraries/strings", true, false, "identify libraries by string fingerprints"},
		{"library_strings_compartments", "/identify/libraries/strings/bycompartment", true, false, "identify libraries by string fingerprints per compartment"},
		{"combined", "/identify/combined/no_compartments", false, true, "combined library and version identification"},
		{"combined_compartments", "/identify/combined/compartments", false, true, "combined identification per compartment"},
		{Default, "/identify/without_truths/compartments", false, true, "identification without ground-truth hints"},
	} {
		register(s)
	}
	register(pnpmStrategy{endpointStrategy{
		name:        "pnpm_without_truths",
		endpoint:    "/identify/without_truths/compartments",
		requiresMap: true,
		description: "identification restricted to bundles whose source map references pnpm packages",
	}})
}

// Lookup returns the named strategy.
func Lookup(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = Default
	}
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names returns every registered strategy name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line summary of s.
func Describe(s Strategy) string {
	if d, ok := s.(interface{ Description() string }); ok {
		return d.Description()
	}
	return ""
}

// Resolved is a strategy with run-level overrides applied.
type Resolved struct {
	Strategy
	endpoint    string
	requiresMap bool
}

// Resolve applies an endpoint override and the run's source map flag. The
// effective requirement is the flag OR the strategy's own requirement.
func Resolve(name, endpointOverride string, requiresSourceMap bool) (Resolved, error) {
	s, err := Lookup(name)
	if err != nil {
		return Resolved{}, err
	}
	endpoint := s.Endpoint()
	if override := strings.TrimSpace(endpointOverride); override != "" {
		if !strings.HasPrefix(override, "/") {
			override = "/" + override
		}
		endpoint = override
	}
	return Resolved{Strategy: s, endpoint: endpoint, requiresMap: requiresSourceMap || s.RequiresSourceMap()}, nil
}

// Endpoint returns the effective endpoint.
func (r Resolved) Endpoint() string { return r.endpoint }

// RequiresSourceMap returns the effective source map requirement.
func (r Resolved) RequiresSourceMap() bool { return r.requiresMap }
