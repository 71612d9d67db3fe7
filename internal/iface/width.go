package iface

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ErrUnresolvedWidth is returned when a width expression references a
// parameter the instance does not define.
var ErrUnresolvedWidth = errors.New("unresolved width")

// UnresolvedError names the parameters a width expression is missing.
type UnresolvedError struct {
	Expr    string
	Missing []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("width %q: undefined parameter(s) %s", e.Expr, strings.Join(e.Missing, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedWidth }

// WidthExpr is a signal width, either a fixed bit count or an expression
// over instance parameters such as "DATA_WIDTH/8" or "$clog2(DEPTH)".
// The zero value means a single bit.
type WidthExpr struct {
	fixed  int
	src    string
	parsed hclsyntax.Expression
}

// FixedWidth returns a constant width.
func FixedWidth(n int) WidthExpr { return WidthExpr{fixed: n} }

// ParseWidth parses a width literal or expression.
func ParseWidth(s string) (WidthExpr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WidthExpr{}, errors.New("empty width")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return WidthExpr{}, fmt.Errorf("width must be positive, got %d", n)
		}
		return FixedWidth(n), nil
	}
	expr, err := parseExpr(s)
	if err != nil {
		return WidthExpr{}, err
	}
	return WidthExpr{src: s, parsed: expr}, nil
}

// WidthFromValue converts a decoded YAML/JSON/HCL scalar into a width.
func WidthFromValue(v any) (WidthExpr, error) {
	switch n := v.(type) {
	case nil:
		return FixedWidth(1), nil
	case int:
		return ParseWidth(strconv.Itoa(n))
	case int64:
		return ParseWidth(strconv.FormatInt(n, 10))
	case float64:
		if n != float64(int64(n)) {
			return WidthExpr{}, fmt.Errorf("width must be an integer, got %v", n)
		}
		return ParseWidth(strconv.FormatInt(int64(n), 10))
	case string:
		return ParseWidth(n)
	}
	return WidthExpr{}, fmt.Errorf("unsupported width value %v (%T)", v, v)
}

// IsFixed reports whether the width needs no parameters.
func (w WidthExpr) IsFixed() bool { return w.parsed == nil }

// Fixed returns the constant width. Only meaningful when IsFixed is true.
func (w WidthExpr) Fixed() int {
	if w.fixed == 0 {
		return 1
	}
	return w.fixed
}

func (w WidthExpr) String() string {
	if w.IsFixed() {
		return strconv.Itoa(w.Fixed())
	}
	return w.src
}

// Value is the width as it appears in a definition record: an int for fixed
// widths, the expression text otherwise.
func (w WidthExpr) Value() any {
	if w.IsFixed() {
		return w.Fixed()
	}
	return w.src
}

// Params lists the parameter names the expression references, sorted.
func (w WidthExpr) Params() []string {
	if w.IsFixed() {
		return nil
	}
	return referencedParams(w.parsed)
}

// Resolve evaluates the width against instance parameters.
func (w WidthExpr) Resolve(params map[string]int64) (int, error) {
	if w.IsFixed() {
		return w.Fixed(), nil
	}
	n, err := evalParsed(w.src, w.parsed, params)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("width %q evaluates to %d", w.src, n)
	}
	return int(n), nil
}

// EvalInt evaluates an integer expression such as a port's msb "ADDR_WIDTH-1".
func EvalInt(src string, params map[string]int64) (int64, error) {
	if n, err := strconv.ParseInt(strings.TrimSpace(src), 10, 64); err == nil {
		return n, nil
	}
	expr, err := parseExpr(src)
	if err != nil {
		return 0, err
	}
	return evalParsed(src, expr, params)
}

func evalParsed(src string, expr hclsyntax.Expression, params map[string]int64) (int64, error) {
	if missing := missingParams(expr, params); len(missing) > 0 {
		return 0, &UnresolvedError{Expr: src, Missing: missing}
	}
	val, diags := expr.Value(evalContext(params))
	if diags.HasErrors() {
		return 0, fmt.Errorf("evaluating %q: %s", src, diags.Error())
	}
	if val.IsNull() || !val.IsKnown() || !val.Type().Equals(cty.Number) {
		return 0, fmt.Errorf("expression %q is not a number", src)
	}
	bf := val.AsBigFloat()
	if !bf.IsInt() {
		return 0, fmt.Errorf("expression %q is not an integer (%s)", src, bf.Text('g', 10))
	}
	n, acc := bf.Int64()
	if acc != big.Exact {
		return 0, fmt.Errorf("expression %q overflows int64", src)
	}
	return n, nil
}

// HCL identifiers may contain '-', so "WIDTH-1" would lex as one name.
// Verilog's $clog2 is accepted as an alias of clog2.
func normalizeExpr(src string) string {
	s := strings.ReplaceAll(src, "$clog2", "clog2")
	return strings.ReplaceAll(s, "-", " - ")
}

func parseExpr(src string) (hclsyntax.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(normalizeExpr(src)), "width", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing width expression %q: %s", src, diags.Error())
	}
	return expr, nil
}

func referencedParams(expr hclsyntax.Expression) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range expr.Variables() {
		name := t.RootName()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func missingParams(expr hclsyntax.Expression, params map[string]int64) []string {
	var missing []string
	for _, name := range referencedParams(expr) {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func evalContext(params map[string]int64) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(params))
	for k, v := range params {
		vars[k] = cty.NumberIntVal(v)
	}
	return &hcl.EvalContext{Variables: vars, Functions: widthFunctions}
}

var widthFunctions = map[string]function.Function{
	"clog2": clog2Func,
	"max":   stdlib.MaxFunc,
	"min":   stdlib.MinFunc,
	"abs":   stdlib.AbsoluteFunc,
}

var clog2Func = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "n", Type: cty.Number}},
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		n, acc := args[0].AsBigFloat().Int64()
		if acc != big.Exact {
			return cty.UnknownVal(cty.Number), errors.New("clog2 needs an integer argument")
		}
		if n < 0 {
			return cty.UnknownVal(cty.Number), fmt.Errorf("clog2 of negative value %d", n)
		}
		return cty.NumberIntVal(clog2(n)), nil
	},
})

func clog2(n int64) int64 {
	if n <= 1 {
		return 0
	}
	return int64(bits.Len64(uint64(n - 1)))
}
