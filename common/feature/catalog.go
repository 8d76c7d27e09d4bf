package feature

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// defaultIntegerCheck applies to integer features that declare no check
const defaultIntegerCheck = "value >= 0"

var prefixPattern = regexp.MustCompile(`^[A-Z]+$`)

// Definition describes one catalog entry
type Definition struct {
	Name   string   `yaml:"name" json:"name"`
	Type   Type     `yaml:"type" json:"type"`
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
	Check  string   `yaml:"check,omitempty" json:"check,omitempty"`
}

type catalogFile struct {
	Features []Definition     `yaml:"features"`
	Prefixes map[string]string `yaml:"prefixes"`
}

type entry struct {
	def     Definition
	allowed map[string]struct{}
	program cel.Program
}

// Catalog is the closed registry of feature names, their types and
// the code prefix of each item type. It is immutable after loading.
type Catalog struct {
	entries  map[string]*entry
	prefixes map[string]string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded feature catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads a catalog from path, or returns the embedded one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML and compiles every check expression
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feature catalog: %w", err)
	}

	env, err := cel.NewEnv(cel.Variable("value", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	c := &Catalog{
		entries:  make(map[string]*entry, len(file.Features)),
		prefixes: make(map[string]string, len(file.Prefixes)),
	}

	for _, def := range file.Features {
		if def.Name == "" {
			return nil, fmt.Errorf("feature without name")
		}
		if _, dup := c.entries[def.Name]; dup {
			return nil, fmt.Errorf("feature %s defined twice", def.Name)
		}
		if !def.Type.Valid() {
			return nil, fmt.Errorf("feature %s has invalid type %q", def.Name, def.Type)
		}
		if (def.Type == TypeEnum) != (len(def.Values) > 0) {
			return nil, fmt.Errorf("feature %s: only enum features list values, and they must list at least one", def.Name)
		}

		e := &entry{def: def}
		if def.Type == TypeEnum {
			e.allowed = make(map[string]struct{}, len(def.Values))
			for _, v := range def.Values {
				e.allowed[v] = struct{}{}
			}
		}

		check := def.Check
		if check == "" && def.Type == TypeInteger {
			check = defaultIntegerCheck
		}
		if check != "" {
			if def.Type == TypeEnum {
				return nil, fmt.Errorf("feature %s: enum features cannot have a check", def.Name)
			}
			e.program, err = compileCheck(env, check)
			if err != nil {
				return nil, fmt.Errorf("feature %s: %w", def.Name, err)
			}
		}

		c.entries[def.Name] = e
	}

	typeEntry := c.entries["type"]
	for itemType, prefix := range file.Prefixes {
		if !prefixPattern.MatchString(prefix) {
			return nil, fmt.Errorf("prefix %q for %s must be uppercase letters", prefix, itemType)
		}
		if typeEntry != nil {
			if _, ok := typeEntry.allowed[itemType]; !ok {
				return nil, fmt.Errorf("prefix declared for unknown type %s", itemType)
			}
		}
		c.prefixes[itemType] = prefix
	}

	return c, nil
}

func compileCheck(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return prg, nil
}

func (c *Catalog) lookup(name string) (*entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, &UnknownFeatureError{Name: name}
	}
	return e, nil
}

// ResolveType returns the storage type of a feature name
func (c *Catalog) ResolveType(name string) (Type, error) {
	e, err := c.lookup(name)
	if err != nil {
		return "", err
	}
	return e.def.Type, nil
}

// Definitions returns every entry sorted by name
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, 0, len(c.entries))
	for _, e := range c.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// CodePrefix returns the auto-code prefix for an item type
func (c *Catalog) CodePrefix(itemType string) (string, bool) {
	p, ok := c.prefixes[itemType]
	return p, ok
}

// CheckOperator fails unless op can compare values of the feature's type
func (c *Catalog) CheckOperator(name string, op Operator) (Type, error) {
	t, err := c.ResolveType(name)
	if err != nil {
		return "", err
	}
	if !op.Supports(t) {
		return "", &UnsupportedOperatorError{Name: name, Type: t, Operator: op}
	}
	return t, nil
}

// Validate coerces raw into the feature's type and enforces enum
// membership and the feature's check expression
func (c *Catalog) Validate(name string, raw any) (Value, error) {
	e, err := c.lookup(name)
	if err != nil {
		return nil, err
	}

	v, err := e.coerce(raw)
	if err != nil {
		return nil, err
	}

	if e.program != nil {
		out, _, err := e.program.Eval(map[string]any{"value": v.Native()})
		if err != nil {
			return nil, &InvalidFeatureValueError{Name: name, Value: raw, Reason: fmt.Sprintf("check failed: %v", err)}
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return nil, &InvalidFeatureValueError{Name: name, Value: raw, Reason: "does not satisfy " + e.checkSource()}
		}
	}

	return v, nil
}

// Coerce converts raw into the feature's type without running the check,
// for search values such as "capacity-byte < 0"
func (c *Catalog) Coerce(name string, raw any) (Value, error) {
	e, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.coerce(raw)
}

// ValidateSet validates a raw name to value map in name order
func (c *Catalog) ValidateSet(raw map[string]any) (Set, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	set := make(Set, len(raw))
	for _, name := range names {
		v, err := c.Validate(name, raw[name])
		if err != nil {
			return nil, err
		}
		set[name] = v
	}
	return set, nil
}

func (e *entry) checkSource() string {
	if e.def.Check != "" {
		return e.def.Check
	}
	return defaultIntegerCheck
}

func (e *entry) invalid(raw any, reason string) error {
	return &InvalidFeatureValueError{Name: e.def.Name, Value: raw, Reason: reason}
}

func (e *entry) coerce(raw any) (Value, error) {
	switch e.def.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, e.invalid(raw, "expected a string")
		}
		if s == "" {
			return nil, e.invalid(raw, "empty string")
		}
		return StringValue(s), nil

	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, e.invalid(raw, "expected a string")
		}
		if _, ok := e.allowed[s]; !ok {
			return nil, e.invalid(raw, "not one of "+strings.Join(e.def.Values, ", "))
		}
		return EnumValue(s), nil

	case TypeInteger:
		n, err := toInt(raw)
		if err != nil {
			return nil, e.invalid(raw, err.Error())
		}
		return IntValue(n), nil

	case TypeDouble:
		f, err := toFloat(raw)
		if err != nil {
			return nil, e.invalid(raw, err.Error())
		}
		return DoubleValue(f), nil
	}
	return nil, e.invalid(raw, "unsupported type")
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt64 {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer")
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected an integer")
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
