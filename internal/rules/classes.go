package rules

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/cache"
)

// ClassCompoundButton is the base class of widgets whose event text carries
// a trailing checked/not checked state.
const ClassCompoundButton = "android.widget.CompoundButton"

//go:embed android_classes.yaml
var builtinClasses []byte

const defaultClassCacheSize = 256

// ClassResolver answers subtype questions about widget class names. Lookups
// try the built-in hierarchy first, then the hierarchy declared by the
// event's source package. Resolved ancestries and misses share an LRU
// keyed by (package, class); a nil entry is a miss. Entries for a package
// are dropped when it changes.
type ClassResolver struct {
	builtin map[string]string

	mu        sync.RWMutex
	installed map[string]map[string]string
	// gen counts Install and Uninstall calls. Lookups resolved under an
	// older generation are not cached.
	gen uint64

	cache  *cache.LRU[string, []string]
	logger *log.Logger
}

// NewClassResolver loads the built-in hierarchy. cacheSize <= 0 selects the
// default size.
func NewClassResolver(cacheSize int, logger *log.Logger) (*ClassResolver, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cacheSize <= 0 {
		cacheSize = defaultClassCacheSize
	}

	var builtin map[string]string
	if err := yaml.Unmarshal(builtinClasses, &builtin); err != nil {
		return nil, fmt.Errorf("parse built-in class hierarchy: %w", err)
	}

	return &ClassResolver{
		builtin:   builtin,
		installed: make(map[string]map[string]string),
		cache:     cache.NewLRU[string, []string](int64(cacheSize)),
		logger:    logger.WithPrefix("classes"),
	}, nil
}

// Install registers the classes declared by a source package, replacing
// any earlier declaration.
func (r *ClassResolver) Install(pkg string, classes map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	decl := make(map[string]string, len(classes))
	for class, super := range classes {
		decl[class] = super
	}
	r.installed[pkg] = decl
	r.gen++
	r.forgetLocked(pkg)
}

// Uninstall drops a source package and everything cached about it.
func (r *ClassResolver) Uninstall(pkg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.installed, pkg)
	r.gen++
	r.forgetLocked(pkg)
}

// IsInstalled reports whether pkg has declared classes.
func (r *ClassResolver) IsInstalled(pkg string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.installed[pkg]
	return ok
}

// Ancestry returns class followed by its superclasses, nearest first. It
// returns false when class is unknown both to the built-in hierarchy and
// to pkg.
func (r *ClassResolver) Ancestry(pkg, class string) ([]string, bool) {
	key := pkg + "|" + class
	if chain, ok := r.cache.Get(key); ok {
		return chain, chain != nil
	}

	r.mu.RLock()
	gen := r.gen
	chain := r.resolveLocked(pkg, class)
	r.mu.RUnlock()

	r.remember(key, gen, chain)
	if chain == nil {
		r.logger.Debug("Class not found", "package", pkg, "class", class)
		return nil, false
	}
	return chain, true
}

// remember caches chain under key unless a package changed since gen.
func (r *ClassResolver) remember(key string, gen uint64, chain []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	_ = r.cache.Put(key, chain)
}

// IsSubclass reports whether class (as seen from pkg) is super or one of
// its subclasses. Unresolvable classes never match.
func (r *ClassResolver) IsSubclass(pkg, class, super string) bool {
	if class == "" || super == "" {
		return false
	}
	if _, ok := r.Ancestry(pkg, super); !ok {
		return false
	}
	chain, ok := r.Ancestry(pkg, class)
	if !ok {
		return false
	}
	for _, c := range chain {
		if c == super {
			return true
		}
	}
	return false
}

// resolveLocked must be called with at least the read lock held.
func (r *ClassResolver) resolveLocked(pkg, class string) []string {
	decl := r.installed[pkg]
	parent := func(c string) (string, bool) {
		if s, ok := r.builtin[c]; ok {
			return s, true
		}
		s, ok := decl[c]
		return s, ok
	}

	if _, ok := parent(class); !ok {
		return nil
	}

	chain := []string{class}
	seen := map[string]bool{class: true}
	for c := class; ; {
		s, ok := parent(c)
		if !ok || seen[s] {
			break
		}
		chain = append(chain, s)
		seen[s] = true
		c = s
	}
	return chain
}

// forgetLocked must be called with the write lock held.
func (r *ClassResolver) forgetLocked(pkg string) {
	prefix := pkg + "|"
	r.cache.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}
