package strategy_test

import (
	"testing"

	"bundleeval/internal/strategy"
)

func TestLookupDefaults(t *testing.T) {
	s, err := strategy.Lookup("")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Name() != "without_truths" || s.Endpoint() != "/identify/without_truths/compartments" || s.RequiresSourceMap() || !s.Cacheable() {
		t.Fatalf("unexpected default strategy %s %s", s.Name(), s.Endpoint())
	}
	if _, err := strategy.Lookup("nope"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestRegistryEndpoints(t *testing.T) {
	cases := []struct {
		name        string
		endpoint    string
		requiresMap bool
		cacheable   bool
	}{
		{"bundler", "/identify/bundler", false, false},
		{"versions", "/identify/versions/no_compartments", true, true},
		{"versions_compartments", "/identify/versions/compartments", true, true},
		{"library_strings", "/identify/libraries/strings", true, false},
		{"library_strings_compartments", "/identify/libraries/strings/bycompartment", true, false},
		{"bundler_compartments", "/identify/bundler-compartments", true, false},
		{"combined", "/identify/combined/no_compartments", false, true},
		{"combined_compartments", "/identify/combined/compartments", false, true},
		{"pnpm_without_truths", "/identify/without_truths/compartments", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := strategy.Lookup(tc.name)
			if err != nil {
				t.Fatal(err)
			}
			if s.Endpoint() != tc.endpoint || s.RequiresSourceMap() != tc.requiresMap || s.Cacheable() != tc.cacheable {
				t.Fatalf("got %s map=%v cache=%v", s.Endpoint(), s.RequiresSourceMap(), s.Cacheable())
			}
			if strategy.Describe(s) == "" {
				t.Fatal("expected description")
			}
		})
	}
	if len(strategy.Names()) != 10 {
		t.Fatalf("expected 10 strategies, got %v", strategy.Names())
	}
}

func TestResolveAppliesOverrides(t *testing.T) {
	r, err := strategy.Resolve("combined", "custom/path", true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Endpoint() != "/custom/path" || !r.RequiresSourceMap() || r.Name() != "combined" {
		t.Fatalf("unexpected resolved strategy %s %v", r.Endpoint(), r.RequiresSourceMap())
	}
	r, err = strategy.Resolve("versions", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !r.RequiresSourceMap() {
		t.Fatal("strategy requirement must survive a false flag")
	}
}

func TestPnpmScreen(t *testing.T) {
	s, err := strategy.Lookup("pnpm_without_truths")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Screen(nil, []byte(`{"sources":["webpack:///./node_modules/.pnpm/react@18.2.0/node_modules/react/index.js"]}`)); !ok {
		t.Fatal("expected pnpm map to pass")
	}
	for name, m := range map[string]string{
		"plain npm":   `{"sources":["webpack:///./node_modules/react/index.js"]}`,
		"no sources":  `{"version":3}`,
		"not json":    `nope`,
		"bad sources": `{"sources":"/.pnpm/"}`,
		"empty":       ``,
	} {
		if reason, ok := s.Screen(nil, []byte(m)); ok || reason == "" {
			t.Fatalf("%s: expected rejection with reason, got ok=%v reason=%q", name, ok, reason)
		}
	}

	plain, _ := strategy.Lookup("bundler")
	if _, ok := plain.Screen(nil, nil); !ok {
		t.Fatal("plain strategies never screen")
	}
}
