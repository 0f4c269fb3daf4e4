package walker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
	"github.com/gofhir/indexer/schema"
	"github.com/gofhir/indexer/service"
	"github.com/gofhir/indexer/value"
)

// DefaultCacheSize is the number of parsed expressions kept by default.
const DefaultCacheSize = 2000

var (
	// ErrSyntax is returned for malformed expressions.
	ErrSyntax = errors.New("invalid path expression")

	// ErrUnsupportedFunction is returned for functions and variables outside
	// the supported subset.
	ErrUnsupportedFunction = errors.New("unsupported function")

	// ErrSingletonExpected is returned when "is" is applied to more than one item.
	ErrSingletonExpected = errors.New("expected a single item")
)

// resolveIsPattern matches the reference type test used by reference search
// parameters: where(resolve() is Patient).
var resolveIsPattern = regexp.MustCompile(`^\s*resolve\(\)\s+is\s+(?:FHIR\.)?([A-Za-z][A-Za-z0-9]*)\s*$`)

// node is one item of an intermediate result: a decoded JSON node tagged with
// its FHIR type and the schema context for navigating into it.
type node struct {
	raw any
	typ string
	ctx schema.Context
}

// Evaluator evaluates search parameter expressions. It implements
// service.PathEvaluator.
type Evaluator struct {
	index    *schema.Index
	criteria service.CriteriaEvaluator
	cache    *lru.Cache[string, expr]
	strict   bool
	metrics  *fi.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCriteriaEvaluator sets the evaluator for where() criteria other than
// "resolve() is T". Without one such criteria fail.
func WithCriteriaEvaluator(c service.CriteriaEvaluator) Option {
	return func(e *Evaluator) {
		if c != nil {
			e.criteria = c
		}
	}
}

// WithStrictSchema disables structural inference: nodes the schema cannot
// type are returned as value.Unrecognized.
func WithStrictSchema(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

// WithMetrics records parsed-expression cache hits and misses on m.
func WithMetrics(m *fi.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithCacheSize sets the number of parsed expressions to keep.
func WithCacheSize(size int) Option {
	return func(e *Evaluator) {
		if size > 0 {
			e.cache, _ = lru.New[string, expr](size)
		}
	}
}

// New creates an Evaluator typing nodes with index. A nil index types
// nothing, and every node is classified structurally.
func New(index *schema.Index, opts ...Option) *Evaluator {
	e := &Evaluator{
		index:    index,
		criteria: service.NullCriteriaEvaluator{},
	}
	e.cache, _ = lru.New[string, expr](DefaultCacheSize)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates expression against res and returns the matched values in
// document order.
func (e *Evaluator) Evaluate(ctx context.Context, res document.Resource, expression string) ([]value.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	root := node{
		raw: res.Root(),
		typ: res.ResourceType(),
		ctx: schema.RootContext(res.ResourceType()),
	}
	nodes, err := e.eval(ctx, tree, []node{root})
	if err != nil {
		return nil, err
	}

	values := make([]value.Value, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, e.toValue(n))
	}
	return values, nil
}

// Validate reports whether expression is within the supported subset.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// CacheSize returns the number of cached parsed expressions.
func (e *Evaluator) CacheSize() int {
	return e.cache.Len()
}

// ClearCache drops every cached parsed expression.
func (e *Evaluator) ClearCache() {
	e.cache.Purge()
}

func (e *Evaluator) compile(expression string) (expr, error) {
	if tree, ok := e.cache.Get(expression); ok {
		if e.metrics != nil {
			e.metrics.RecordCacheHit()
		}
		return tree, nil
	}
	if e.metrics != nil {
		e.metrics.RecordCacheMiss()
	}

	tree, err := parse(expression)
	if err != nil {
		return nil, err
	}
	e.cache.Add(expression, tree)
	return tree, nil
}

func (e *Evaluator) eval(ctx context.Context, ex expr, focus []node) ([]node, error) {
	switch ex := ex.(type) {
	case *typeFilter:
		return e.filterType(focus, ex.Type), nil

	case *member:
		input, err := e.evalTarget(ctx, ex.Target, focus)
		if err != nil {
			return nil, err
		}
		var out []node
		for _, n := range input {
			out = e.appendChildren(out, n, ex.Name)
		}
		return out, nil

	case *call:
		input, err := e.evalTarget(ctx, ex.Target, focus)
		if err != nil {
			return nil, err
		}
		return e.evalCall(ctx, ex, input)

	case *typeOp:
		operand, err := e.eval(ctx, ex.Operand, focus)
		if err != nil {
			return nil, err
		}
		if ex.Op == "as" {
			return e.filterType(operand, ex.Type), nil
		}
		switch len(operand) {
		case 0:
			return nil, nil
		case 1:
			return []node{{raw: e.isA(operand[0], ex.Type), typ: "boolean"}}, nil
		default:
			return nil, fmt.Errorf("%w: 'is' applied to %d items", ErrSingletonExpected, len(operand))
		}

	case *union:
		var out []node
		for _, part := range ex.Parts {
			nodes, err := e.eval(ctx, part, focus)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown expression %T", ErrSyntax, ex)
	}
}

func (e *Evaluator) evalTarget(ctx context.Context, target expr, focus []node) ([]node, error) {
	if target == nil {
		return focus, nil
	}
	return e.eval(ctx, target, focus)
}

func (e *Evaluator) evalCall(ctx context.Context, c *call, input []node) ([]node, error) {
	switch c.Name {
	case "where":
		var out []node
		for _, n := range input {
			ok, err := e.matches(ctx, n, c.Arg)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, n)
			}
		}
		return out, nil

	case "as", "ofType":
		return e.filterType(input, c.Arg), nil

	case "extension":
		var out []node
		for _, n := range input {
			out = e.appendExtensions(out, n, c.Arg)
		}
		return out, nil

	case "first":
		if len(input) == 0 {
			return nil, nil
		}
		return input[:1], nil

	default:
		return nil, fmt.Errorf("%w: %s()", ErrUnsupportedFunction, c.Name)
	}
}

// appendChildren appends the members called name of n, flattening arrays.
func (e *Evaluator) appendChildren(out []node, n node, name string) []node {
	obj, ok := n.raw.(map[string]any)
	if !ok {
		return out
	}
	for _, child := range e.index.Children(n.ctx, name, obj) {
		out = e.appendFlattened(out, obj[child.Key], child.Type, child.Context)
	}
	return out
}

// appendExtensions appends the extensions of n whose url equals url.
func (e *Evaluator) appendExtensions(out []node, n node, url string) []node {
	obj, ok := n.raw.(map[string]any)
	if !ok {
		return out
	}
	exts, _ := obj["extension"].([]any)
	for _, raw := range exts {
		ext, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if u, _ := ext["url"].(string); u == url {
			out = append(out, node{raw: ext, typ: "Extension", ctx: schema.RootContext("Extension")})
		}
	}
	return out
}

func (e *Evaluator) appendFlattened(out []node, raw any, typ string, ctx schema.Context) []node {
	switch v := raw.(type) {
	case nil:
		return out
	case []any:
		for _, item := range v {
			if item != nil {
				out = append(out, e.makeNode(item, typ, ctx))
			}
		}
		return out
	default:
		return append(out, e.makeNode(raw, typ, ctx))
	}
}

// makeNode tags a child node. Contained and inline resources take their type
// from their own resourceType.
func (e *Evaluator) makeNode(raw any, typ string, ctx schema.Context) node {
	if typ == "" || typ == "Resource" {
		if obj, ok := raw.(map[string]any); ok {
			if rt, _ := obj["resourceType"].(string); rt != "" {
				return node{raw: raw, typ: rt, ctx: schema.RootContext(rt)}
			}
		}
	}
	return node{raw: raw, typ: typ, ctx: ctx}
}

func (e *Evaluator) filterType(nodes []node, typeName string) []node {
	var out []node
	for _, n := range nodes {
		if e.isA(n, typeName) {
			out = append(out, n)
		}
	}
	return out
}

// isA reports whether n is an instance of typeName.
func (e *Evaluator) isA(n node, typeName string) bool {
	if n.typ == "" {
		shape := string(value.Infer(n.raw).Shape())
		return shape != "" && (shape == typeName || e.index.IsA(shape, typeName))
	}
	if n.typ == typeName || e.index.IsA(n.typ, typeName) {
		return true
	}
	if schema.IsPrimitiveType(n.typ) && strings.EqualFold(n.typ, typeName) {
		return true
	}
	// Resources missing from the schema still satisfy the abstract bases.
	if (typeName == "Resource" || typeName == "DomainResource") && !e.index.HasType(n.typ) {
		obj, ok := n.raw.(map[string]any)
		return ok && obj["resourceType"] == n.typ
	}
	return false
}

// matches decides whether n passes a where() criteria.
func (e *Evaluator) matches(ctx context.Context, n node, criteria string) (bool, error) {
	if m := resolveIsPattern.FindStringSubmatch(criteria); m != nil {
		ref, ok := value.Decode("Reference", n.raw).(value.Reference)
		if !ok {
			return false, nil
		}
		target := ref.TargetType()
		return target != "" && (target == m[1] || e.index.IsA(target, m[1])), nil
	}

	ok, err := e.criteria.Matches(ctx, n.raw, criteria)
	if err != nil {
		return false, fmt.Errorf("where(%s): %w", criteria, err)
	}
	return ok, nil
}

// toValue converts a result node to a value.
func (e *Evaluator) toValue(n node) value.Value {
	switch {
	case n.typ != "":
		return value.Decode(n.typ, n.raw)
	case e.strict:
		return value.Unrecognized{Raw: n.raw}
	default:
		return value.Infer(n.raw)
	}
}

// Verify interface compliance
var _ service.PathEvaluator = (*Evaluator)(nil)
