// Package processor selects the rule that speaks an event: rules supplied
// by the event's source package are tried first, then the default rules.
package processor

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Loader fetches the override rule set for a source package. found is
// false when the source has no rule document.
type Loader func(pkg string) (set rules.RuleSet, found bool, err error)

// Option configures a Processor.
type Option func(*Processor)

// WithClassResolver enables subtype matching on class names.
func WithClassResolver(r *rules.ClassResolver) Option {
	return func(p *Processor) {
		p.classes = r
	}
}

// Processor owns the default rule set and the per-source overrides. Rule
// sets are immutable once stored, so a Process call works on the sets it
// read under the lock even if they are replaced concurrently.
type Processor struct {
	mu         sync.RWMutex
	defaultSet rules.RuleSet
	overrides  map[string]rules.RuleSet
	attempted  map[string]struct{}

	loader  Loader
	classes *rules.ClassResolver
	logger  *log.Logger
}

// New creates a processor. loader may be nil, in which case overrides are
// only installed through SetOverride.
func New(defaultSet rules.RuleSet, loader Loader, logger *log.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	p := &Processor{
		defaultSet: defaultSet,
		overrides:  make(map[string]rules.RuleSet),
		attempted:  make(map[string]struct{}),
		loader:     loader,
		logger:     logger.WithPrefix("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process returns the utterance produced by the first matching rule, trying
// the source's overrides before the default set.
func (p *Processor) Process(ev *event.Event, activity string) (*ttypes.Utterance, bool) {
	p.EnsureOverride(ev.PackageName)

	p.mu.RLock()
	override := p.overrides[ev.PackageName]
	defaults := p.defaultSet
	p.mu.RUnlock()

	ctx := &rules.Context{Activity: activity, Classes: p.classes, Logger: p.logger}

	if utt, ok := p.apply(override, ev, ctx); ok {
		return utt, true
	}
	return p.apply(defaults, ev, ctx)
}

func (p *Processor) apply(set rules.RuleSet, ev *event.Event, ctx *rules.Context) (*ttypes.Utterance, bool) {
	utt := ttypes.NewUtterance()
	for _, r := range set {
		matched, err := safeApply(r, ev, ctx, utt)
		if err != nil {
			p.logger.Error("Rule panicked", "source", r.Source, "rule", r.Ordinal, "err", err)
			utt = ttypes.NewUtterance()
			continue
		}
		if matched {
			return utt, true
		}
	}
	return nil, false
}

func safeApply(r *rules.Rule, ev *event.Event, ctx *rules.Context, utt *ttypes.Utterance) (matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return r.Apply(ev, ctx, utt), nil
}

// EnsureOverride loads the override set for pkg on first contact. The
// result, including absence, is remembered until the source is removed.
func (p *Processor) EnsureOverride(pkg string) {
	if pkg == "" || p.loader == nil {
		return
	}

	p.mu.RLock()
	_, done := p.attempted[pkg]
	p.mu.RUnlock()
	if done {
		return
	}

	set, found, err := p.loader(pkg)
	if err != nil {
		p.logger.Warn("Could not load source rules", "package", pkg, "err", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, done := p.attempted[pkg]; done {
		return
	}
	p.attempted[pkg] = struct{}{}
	if err == nil && found {
		p.overrides[pkg] = set
		p.logger.Debug("Loaded source rules", "package", pkg, "count", len(set))
	}
}

// ReloadOverride reloads the override set for pkg, e.g. after the source
// was updated. A missing or broken document removes the override.
func (p *Processor) ReloadOverride(pkg string) error {
	if p.loader == nil {
		return nil
	}

	set, found, err := p.loader(pkg)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempted[pkg] = struct{}{}
	if err != nil || !found {
		delete(p.overrides, pkg)
		return err
	}
	p.overrides[pkg] = set
	return nil
}

// SetOverride installs set as the override for pkg.
func (p *Processor) SetOverride(pkg string, set rules.RuleSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[pkg] = set
	p.attempted[pkg] = struct{}{}
}

// RemoveOverride evicts the override for pkg. The next event from pkg
// triggers a fresh load.
func (p *Processor) RemoveOverride(pkg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.overrides, pkg)
	delete(p.attempted, pkg)
}

// SetDefault replaces the default rule set.
func (p *Processor) SetDefault(set rules.RuleSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultSet = set
}

// Overrides returns the packages that currently have an override, sorted.
func (p *Processor) Overrides() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pkgs := make([]string, 0, len(p.overrides))
	for pkg := range p.overrides {
		pkgs = append(pkgs, pkg)
	}
	slices.Sort(pkgs)
	return pkgs
}

// DirLoader returns a Loader reading <dir>/<pkg>.yaml (or .yml, .yaml.zst)
// through repo.
func DirLoader(repo *rules.Repository, dir string) Loader {
	return func(pkg string) (rules.RuleSet, bool, error) {
		path, ok := rules.DocumentPath(dir, pkg)
		if !ok {
			return nil, false, nil
		}
		set, err := repo.LoadFile(path)
		if err != nil {
			return nil, false, err
		}
		return set, true, nil
	}
}
