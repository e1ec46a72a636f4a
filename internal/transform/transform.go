// Package transform holds the content-transform hook and the rule table that
// picks a transform for each backing file.
//
// A transform receives the complete raw contents of a backing file and
// returns the bytes readers of the mount see. It must be deterministic for a
// fixed input and must not do I/O against the mount.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// Transformer is the content-transform hook.
type Transformer interface {
	Name() string
	Transform(raw []byte) ([]byte, error)
}

// Selector picks the transform for a path relative to the backing root.
type Selector interface {
	Select(relPath string) Transformer
}

// Func adapts a plain function to Transformer.
type Func struct {
	name string
	fn   func([]byte) ([]byte, error)
}

// NewFunc returns a named Transformer backed by fn.
func NewFunc(name string, fn func([]byte) ([]byte, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Transform(raw []byte) ([]byte, error) { return f.fn(raw) }

type identity struct{}

func (identity) Name() string                         { return IdentityName }
func (identity) Transform(raw []byte) ([]byte, error) { return raw, nil }

// IdentityName is the registry name of the passthrough transform.
const IdentityName = "identity"

// Identity returns raw bytes unchanged.
var Identity Transformer = identity{}

// IsIdentity reports whether t is the passthrough transform. Readers use it
// to read only the requested window instead of the whole file.
func IsIdentity(t Transformer) bool {
	if t == nil {
		return true
	}
	_, ok := t.(identity)
	return ok
}

// ErrUnknownTransform is returned when a rule names an unregistered transform.
var ErrUnknownTransform = errors.New("unknown transform")

// Registry maps transform names to implementations.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Transformer
}

// NewRegistry returns a registry holding only the identity transform.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Transformer{IdentityName: Identity}}
}

// Register adds or replaces t under its name.
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[t.Name()] = t
}

// Get returns the transform registered under name.
func (r *Registry) Get(name string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rule binds a gitignore-style pattern to a transform name.
type Rule struct {
	Pattern   string `yaml:"pattern"`
	Transform string `yaml:"transform"`
}

// DefaultRules renders markdown files to plain text.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "*.md", Transform: MarkdownTextName},
		{Pattern: "*.markdown", Transform: MarkdownTextName},
	}
}

type boundRule struct {
	rule    Rule
	matcher *ignore.GitIgnore
	t       Transformer
}

// Table is an ordered rule list. The first matching rule wins; a path no
// rule matches gets the identity transform.
type Table struct {
	rules []boundRule
}

// NewTable resolves every rule against reg.
func NewTable(rules []Rule, reg *Registry) (*Table, error) {
	table := &Table{rules: make([]boundRule, 0, len(rules))}
	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("transform rule %d: empty pattern", i)
		}
		t, err := reg.Get(rule.Transform)
		if err != nil {
			return nil, fmt.Errorf("transform rule %d (%s): %w", i, rule.Pattern, err)
		}
		table.rules = append(table.rules, boundRule{
			rule:    rule,
			matcher: ignore.CompileIgnoreLines(rule.Pattern),
			t:       t,
		})
	}
	return table, nil
}

// Select returns the transform of the first rule matching relPath.
func (t *Table) Select(relPath string) Transformer {
	if t == nil {
		return Identity
	}
	for _, r := range t.rules {
		if r.matcher.MatchesPath(relPath) {
			return r.t
		}
	}
	return Identity
}

// Rules returns the rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.rule
	}
	return out
}
