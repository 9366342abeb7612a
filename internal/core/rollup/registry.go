package rollup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vitalsum-lab/vitalsum/internal/catalog"
)

// Registry holds the combined rule set: rules auto-generated from the
// indicator catalog plus explicitly registered custom rules.
//
// The combined set is computed lazily exactly once and is immutable
// afterward. RegisterCustomRule and Invalidate drop the cache so the next
// Rules call recomputes.
type Registry struct {
	cat catalog.Catalog

	mu     sync.Mutex
	custom []Rule
	cached []Rule
}

// NewRegistry creates a registry backed by the given indicator catalog.
func NewRegistry(cat catalog.Catalog) *Registry {
	return &Registry{cat: cat}
}

// RegisterCustomRule appends a custom rule and invalidates the cached set.
// The rule must have been built through NewRule; a zero Method is rejected.
func (r *Registry) RegisterCustomRule(rule Rule) error {
	if rule.SourceIndicator == "" || rule.TargetIndicator == "" || rule.Method == "" {
		return fmt.Errorf("custom rule %+v: incomplete rule (use NewRule)", rule)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, rule)
	r.cached = nil
	slog.Info("[Registry] Registered custom rule",
		"source", rule.SourceIndicator,
		"target", rule.TargetIndicator,
		"method", rule.Method,
	)
	return nil
}

// Invalidate drops the cached combined rule set.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// Rules returns the combined rule set sorted by priority descending.
// The returned slice is shared; callers must not mutate it.
func (r *Registry) Rules() []Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached
	}

	auto := r.generate()
	combined := make([]Rule, 0, len(auto)+len(r.custom))
	combined = append(combined, auto...)
	combined = append(combined, r.custom...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Priority > combined[j].Priority
	})

	r.cached = combined
	slog.Info("[Registry] Generated rule set",
		"total", len(combined),
		"auto", len(auto),
		"custom", len(r.custom),
	)
	return r.cached
}

// RulesForSource returns the enabled rules for one source indicator.
func (r *Registry) RulesForSource(source string) []Rule {
	var out []Rule
	for _, rule := range r.Rules() {
		if rule.Enabled && rule.SourceIndicator == source {
			out = append(out, rule)
		}
	}
	return out
}

// SourceIndicators returns the sorted distinct source indicators that have
// at least one rule.
func (r *Registry) SourceIndicators() []string {
	seen := make(map[string]struct{})
	for _, rule := range r.Rules() {
		seen[rule.SourceIndicator] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// generate derives one rule per (series indicator, declared method).
// Indicators without methods and non-series indicators are skipped;
// an indicator declaring an unknown method is skipped with a warning
// rather than poisoning the whole set.
func (r *Registry) generate() []Rule {
	var rules []Rule
	for _, info := range r.cat.Indicators() {
		if info.DataType != catalog.TypeSeries || len(info.AggregationMethods) == 0 {
			continue
		}
		for _, raw := range info.AggregationMethods {
			method, err := ParseMethod(raw)
			if err != nil {
				slog.Warn("[Registry] Skipping indicator method", "indicator", info.Name, "error", err)
				continue
			}
			rule, err := NewRule(info.Name, TargetName(info.Name, method), string(method))
			if err != nil {
				slog.Warn("[Registry] Skipping malformed generated rule", "indicator", info.Name, "error", err)
				continue
			}
			rules = append(rules, rule)
		}
	}
	return rules
}

// rawCustomRule is the on-disk YAML shape of a custom rule file.
type rawCustomRule struct {
	SourceIndicator string `yaml:"source_indicator"`
	TargetIndicator string `yaml:"target_indicator"`
	Method          string `yaml:"method"`
	Priority        int    `yaml:"priority"`
}

// LoadCustomRules reads *.yaml rule files from dir and registers each one.
// A missing directory means zero custom rules. A malformed file fails the
// whole load: rule construction errors are startup errors.
func (r *Registry) LoadCustomRules(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("custom rule dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("custom rule path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading custom rule dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading rule file %s: %w", path, err)
		}

		var raw rawCustomRule
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing rule file %s: %w", path, err)
		}
		if raw.SourceIndicator == "" && raw.TargetIndicator == "" {
			continue // empty / comment-only file
		}

		rule, err := NewRule(raw.SourceIndicator, raw.TargetIndicator, raw.Method)
		if err != nil {
			return fmt.Errorf("rule file %s: %w", path, err)
		}
		if raw.Priority != 0 {
			rule.Priority = raw.Priority
		}
		if err := r.RegisterCustomRule(rule); err != nil {
			return fmt.Errorf("rule file %s: %w", path, err)
		}
	}
	return nil
}
