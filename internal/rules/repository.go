package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Document sections and keys.
const (
	keyClasses   = "classes"
	keyRules     = "rules"
	keyFilter    = "filter"
	keyFormatter = "formatter"
	keyMetadata  = "metadata"
	keyCustom    = "custom"
	keyTemplate  = "template"
	keySelectors = "selectors"
	keyProperty  = "property"
	keyRegex     = "regex"
	keySplit     = "split"
	keyText      = "text"
)

// DefaultSource names the built-in default document.
const DefaultSource = "default"

// DefaultDocument is the built-in default rule document.
//
//go:embed default_rules.yaml
var DefaultDocument []byte

// Document file extensions, longest first.
var documentExts = []string{".yaml.zst", ".yml.zst", ".yaml", ".yml"}

// Repository parses rule documents into rule sets.
type Repository struct {
	registry *Registry
	classes  *ClassResolver
	logger   *log.Logger
}

// NewRepository creates a repository. Custom capability names resolve
// through registry; classes declared by a document are installed into
// resolver under the document's source. Either may be nil.
func NewRepository(registry *Registry, resolver *ClassResolver, logger *log.Logger) *Repository {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Repository{
		registry: registry,
		classes:  resolver,
		logger:   logger.WithPrefix("rules"),
	}
}

// Load parses one document. Malformed scalars and individual malformed
// rules are logged and dropped. An unknown property name fails the whole
// document with an UNKNOWN_PROPERTY error.
func (r *Repository) Load(rd io.Reader, source string) (RuleSet, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return RuleSet{}, nil
		}
		return nil, ttypes.NewPipelineError(ttypes.ErrorCodeDefinitionParse, "invalid document", err).
			WithContext("source", source)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, ttypes.NewPipelineError(ttypes.ErrorCodeDefinitionParse,
			fmt.Sprintf("document root must be a mapping (line %d)", root.Line), nil).
			WithContext("source", source)
	}

	var set RuleSet
	for key, value := range pairs(root) {
		switch key.Value {
		case keyClasses:
			r.loadClasses(value, source)
		case keyRules:
			if value.Kind != yaml.SequenceNode {
				return nil, ttypes.NewPipelineError(ttypes.ErrorCodeDefinitionParse,
					fmt.Sprintf("rules must be a sequence (line %d)", value.Line), nil).
					WithContext("source", source)
			}
			for i, node := range value.Content {
				rule, err := r.parseRule(node, source, i)
				if err != nil {
					var pe *ttypes.PipelineError
					if errors.As(err, &pe) && pe.IsFatal() {
						return nil, err
					}
					r.logger.Warn("Dropping rule", "source", source, "rule", i, "err", err)
					continue
				}
				set = append(set, rule)
			}
		default:
			r.logger.Warn("Ignoring unknown section", "source", source, "section", key.Value, "line", key.Line)
		}
	}

	r.logger.Debug("Loaded rules", "source", source, "count", len(set))
	return set, nil
}

// LoadDefault loads the built-in default document.
func (r *Repository) LoadDefault() (RuleSet, error) {
	return r.Load(bytes.NewReader(DefaultDocument), DefaultSource)
}

// LoadFile loads a document from disk. Files ending in .zst are zstd
// compressed. The source is derived from the file name.
func (r *Repository) LoadFile(path string) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		rd = dec
	}

	set, err := r.Load(rd, SourceFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// LoadDir loads every document in dir, keyed by source package. A
// document that fails to load is logged and skipped.
func (r *Repository) LoadDir(dir string) (map[string]RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	sets := make(map[string]RuleSet)
	for _, e := range entries {
		if e.IsDir() || !IsDocument(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		set, err := r.LoadFile(path)
		if err != nil {
			r.logger.Warn("Skipping rule document", "path", path, "err", err)
			continue
		}
		sets[SourceFromPath(path)] = set
	}
	return sets, nil
}

// DocumentPath returns the path of the document for source in dir, trying
// each supported extension. It returns false when none exists.
func DocumentPath(dir, source string) (string, bool) {
	for _, ext := range documentExts {
		path := filepath.Join(dir, source+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// IsDocument reports whether name has a rule document extension.
func IsDocument(name string) bool {
	for _, ext := range documentExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// SourceFromPath returns the source package a document path belongs to:
// its base name without the document extension.
func SourceFromPath(path string) string {
	base := filepath.Base(path)
	for _, ext := range documentExts {
		if s, ok := strings.CutSuffix(base, ext); ok {
			return s
		}
	}
	return base
}

func (r *Repository) loadClasses(node *yaml.Node, source string) {
	var classes map[string]string
	if err := node.Decode(&classes); err != nil {
		r.logger.Warn("Ignoring malformed classes section", "source", source, "err", err)
		return
	}
	if r.classes != nil && len(classes) > 0 {
		r.classes.Install(source, classes)
	}
}

func (r *Repository) parseRule(node *yaml.Node, source string, ordinal int) (*Rule, error) {
	if node.Kind != yaml.MappingNode {
		return nil, definitionError(source, ordinal, node, "rule must be a mapping")
	}

	rule := &Rule{Source: source, Ordinal: ordinal, Metadata: map[string]any{}}
	for key, value := range pairs(node) {
		var err error
		switch key.Value {
		case keyFilter:
			rule.Filter, err = r.parseFilter(value, source, ordinal)
		case keyFormatter:
			rule.Formatter, err = r.parseFormatter(value, source, ordinal)
		case keyMetadata:
			rule.Metadata, err = r.parseMetadata(value, source, ordinal)
		default:
			err = definitionError(source, ordinal, key, "unknown rule section "+key.Value)
		}
		if err != nil {
			return nil, err
		}
	}
	return rule, nil
}

func (r *Repository) parseFilter(node *yaml.Node, source string, ordinal int) (Filter, error) {
	if node.Kind != yaml.MappingNode {
		return nil, definitionError(source, ordinal, node, "filter must be a mapping")
	}

	if custom := lookup(node, keyCustom); custom != nil {
		f, err := r.registry.Filter(custom.Value)
		if err != nil {
			r.logger.Warn("Custom filter unavailable, rule matches all events",
				"source", source, "rule", ordinal, "name", custom.Value, "err", err)
			return nil, nil
		}
		return f, nil
	}

	props, err := r.parseProperties(node, source, ordinal)
	if err != nil {
		return nil, err
	}
	return NewPropertyFilter(props), nil
}

func (r *Repository) parseMetadata(node *yaml.Node, source string, ordinal int) (map[string]any, error) {
	if node.Kind != yaml.MappingNode {
		return nil, definitionError(source, ordinal, node, "metadata must be a mapping")
	}

	props, err := r.parseProperties(node, source, ordinal)
	if err != nil {
		return nil, err
	}
	if q, ok := props[PropQueuing].(int); ok {
		props[ttypes.MetadataQueuing] = ttypes.QueueMode(q)
	}
	return props, nil
}

// parseProperties parses a mapping of property name to scalar. A value that
// does not parse is dropped; an unknown name fails the document.
func (r *Repository) parseProperties(node *yaml.Node, source string, ordinal int) (map[string]any, error) {
	props := make(map[string]any, len(node.Content)/2)
	for key, value := range pairs(node) {
		if !IsProperty(key.Value) {
			return nil, unknownPropertyError(source, ordinal, key)
		}
		v, err := parseProperty(key.Value, value)
		if err != nil {
			r.logger.Warn("Dropping property", "source", source, "rule", ordinal,
				"property", key.Value, "line", value.Line, "err", err)
			continue
		}
		props[key.Value] = v
	}
	return props, nil
}

func (r *Repository) parseFormatter(node *yaml.Node, source string, ordinal int) (Formatter, error) {
	if node.Kind != yaml.MappingNode {
		return nil, definitionError(source, ordinal, node, "formatter must be a mapping")
	}

	if custom := lookup(node, keyCustom); custom != nil {
		f, err := r.registry.Formatter(custom.Value)
		if err != nil {
			r.logger.Warn("Custom formatter unavailable, rule has no formatter",
				"source", source, "rule", ordinal, "name", custom.Value, "err", err)
			return nil, nil
		}
		return f, nil
	}

	var template string
	var selectors []Selector
	for key, value := range pairs(node) {
		switch key.Value {
		case keyTemplate:
			template = value.Value
		case keySelectors:
			if value.Kind != yaml.SequenceNode {
				r.logger.Warn("Dropping selectors, expected a sequence",
					"source", source, "rule", ordinal, "line", value.Line)
				continue
			}
			for _, sn := range value.Content {
				sel, err := r.parseSelector(sn, source, ordinal)
				if err != nil {
					var pe *ttypes.PipelineError
					if errors.As(err, &pe) && pe.IsFatal() {
						return nil, err
					}
					r.logger.Warn("Dropping selector", "source", source, "rule", ordinal, "err", err)
					continue
				}
				selectors = append(selectors, sel)
			}
		default:
			r.logger.Warn("Ignoring unknown formatter key",
				"source", source, "rule", ordinal, "key", key.Value, "line", key.Line)
		}
	}
	return NewTemplateFormatter(template, selectors), nil
}

func (r *Repository) parseSelector(node *yaml.Node, source string, ordinal int) (Selector, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return Selector{}, definitionError(source, ordinal, node, "selector must have exactly one key")
	}
	key, value := node.Content[0], node.Content[1]
	if value.Kind != yaml.ScalarNode {
		return Selector{}, definitionError(source, ordinal, value, "selector value must be a scalar")
	}

	switch key.Value {
	case keyProperty:
		if !IsProperty(value.Value) {
			return Selector{}, unknownPropertyError(source, ordinal, value)
		}
		return Selector{Kind: SelectorProperty, Property: value.Value}, nil
	case keyRegex, keySplit:
		re, err := regexp.Compile(value.Value)
		if err != nil {
			return Selector{}, definitionError(source, ordinal, value, err.Error())
		}
		kind := SelectorRegex
		if key.Value == keySplit {
			kind = SelectorSplit
		}
		return Selector{Kind: kind, Pattern: re}, nil
	case keyText:
		return Selector{Kind: SelectorText, Text: value.Value}, nil
	default:
		return Selector{}, definitionError(source, ordinal, key, "unknown selector "+key.Value)
	}
}

func definitionError(source string, ordinal int, node *yaml.Node, msg string) error {
	return ttypes.NewPipelineError(ttypes.ErrorCodeDefinitionParse,
		fmt.Sprintf("%s (line %d)", msg, node.Line), nil).
		WithContext("source", source).
		WithContext("rule", ordinal)
}

func unknownPropertyError(source string, ordinal int, node *yaml.Node) error {
	return ttypes.NewPipelineError(ttypes.ErrorCodeUnknownProperty,
		fmt.Sprintf("rule %d: %q (line %d)", ordinal, node.Value, node.Line), ttypes.ErrUnknownProperty).
		WithContext("source", source).
		WithContext("rule", ordinal).
		WithContext("property", node.Value)
}

// pairs iterates the key/value pairs of a mapping node.
func pairs(node *yaml.Node) func(yield func(key, value *yaml.Node) bool) {
	return func(yield func(key, value *yaml.Node) bool) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !yield(node.Content[i], node.Content[i+1]) {
				return
			}
		}
	}
}

func lookup(node *yaml.Node, key string) *yaml.Node {
	for k, v := range pairs(node) {
		if k.Value == key {
			return v
		}
	}
	return nil
}
