package evaluator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"sync"
)

// Func is a whitelisted function callable from an expression.
type Func func(args ...interface{}) (interface{}, error)

// Evaluator interprets a restricted subset of Go expression syntax over a
// variables map. Only literals, identifiers, selectors, index expressions,
// unary/binary operators, parentheses and registered functions are allowed.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]ast.Expr
	funcs map[string]Func
}

// Option customises an Evaluator.
type Option func(e *Evaluator)

// WithFunc registers a callable function.
func WithFunc(name string, fn Func) Option {
	return func(e *Evaluator) {
		e.funcs[name] = fn
	}
}

// New creates an evaluator with the builtin function set.
func New(options ...Option) *Evaluator {
	ret := &Evaluator{
		cache: make(map[string]ast.Expr),
		funcs: builtins(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Normalize strips an optional ${...} wrapper and converts single-quoted
// literals to Go string literals.
func Normalize(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "${") && strings.HasSuffix(expr, "}") {
		expr = strings.TrimSpace(expr[2 : len(expr)-1])
	}
	return quoteSingle(expr)
}

// quoteSingle rewrites '...' literals found outside double-quoted and raw
// strings as Go string literals; \' inside them stands for a quote.
func quoteSingle(expr string) string {
	if !strings.ContainsRune(expr, '\'') {
		return expr
	}
	var out strings.Builder
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch ch {
		case '"', '`':
			end := closing(expr, i, ch)
			out.WriteString(expr[i:end])
			i = end - 1
		case '\'':
			var literal strings.Builder
			j := i + 1
			for ; j < len(expr) && expr[j] != '\''; j++ {
				if expr[j] == '\\' && j+1 < len(expr) && expr[j+1] == '\'' {
					j++
				}
				literal.WriteByte(expr[j])
			}
			if j >= len(expr) {
				out.WriteString(expr[i:])
				return out.String()
			}
			out.WriteString(strconv.Quote(literal.String()))
			i = j
		default:
			out.WriteByte(ch)
		}
	}
	return out.String()
}

// closing returns the index just past the string literal opened at start.
func closing(expr string, start int, quote byte) int {
	for j := start + 1; j < len(expr); j++ {
		switch expr[j] {
		case '\\':
			if quote == '"' {
				j++
			}
		case quote:
			return j + 1
		}
	}
	return len(expr)
}

// Parse parses and validates an expression without evaluating it.
func (e *Evaluator) Parse(expr string) (ast.Expr, error) {
	normalized := Normalize(expr)
	if normalized == "" {
		return nil, fmt.Errorf("empty expression")
	}
	e.mu.RLock()
	node, ok := e.cache[normalized]
	e.mu.RUnlock()
	if ok {
		return node, nil
	}
	node, err := parser.ParseExpr(normalized)
	if err != nil {
		return nil, &SyntaxError{Expr: expr, Err: err}
	}
	if err = e.check(node); err != nil {
		return nil, &SyntaxError{Expr: expr, Err: err}
	}
	e.mu.Lock()
	e.cache[normalized] = node
	e.mu.Unlock()
	return node, nil
}

// Evaluate evaluates expr against variables.
func (e *Evaluator) Evaluate(expr string, variables map[string]interface{}) (interface{}, error) {
	node, err := e.Parse(expr)
	if err != nil {
		return nil, err
	}
	value, err := e.eval(node, variables)
	if err != nil {
		return nil, &EvaluationError{Expr: expr, Err: err}
	}
	return value, nil
}

// Condition evaluates expr and converts the result to a boolean. An empty
// expression is true.
func (e *Evaluator) Condition(expr string, variables map[string]interface{}) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	value, err := e.Evaluate(expr, variables)
	if err != nil {
		return false, err
	}
	ok, err := Truthy(value)
	if err != nil {
		return false, &EvaluationError{Expr: expr, Err: err}
	}
	return ok, nil
}

// Truthy converts a value to bool: bools as is, non-zero numbers, non-empty
// strings and collections are true, nil is false.
func Truthy(value interface{}) (bool, error) {
	switch actual := value.(type) {
	case nil:
		return false, nil
	case bool:
		return actual, nil
	case string:
		return strings.TrimSpace(actual) != "", nil
	case []interface{}:
		return len(actual) > 0, nil
	case map[string]interface{}:
		return len(actual) > 0, nil
	}
	if isNumber(value) {
		return toFloat64(value) != 0, nil
	}
	return false, fmt.Errorf("unsupported condition type: %T", value)
}

// check rejects node types outside of the allowed grammar.
func (e *Evaluator) check(node ast.Expr) error {
	var err error
	ast.Inspect(node, func(n ast.Node) bool {
		if err != nil || n == nil {
			return false
		}
		switch actual := n.(type) {
		case *ast.BasicLit, *ast.Ident, *ast.SelectorExpr, *ast.IndexExpr, *ast.ParenExpr:
		case *ast.UnaryExpr:
			if actual.Op != token.NOT && actual.Op != token.SUB && actual.Op != token.ADD {
				err = fmt.Errorf("unsupported unary operator %v", actual.Op)
			}
		case *ast.BinaryExpr:
			if _, ok := binaryOps[actual.Op]; !ok {
				err = fmt.Errorf("unsupported operator %v", actual.Op)
			}
		case *ast.CallExpr:
			ident, ok := actual.Fun.(*ast.Ident)
			if !ok {
				err = fmt.Errorf("unsupported call expression")
				return false
			}
			if _, ok = e.funcs[ident.Name]; !ok {
				err = fmt.Errorf("unknown function %v", ident.Name)
				return false
			}
		default:
			err = fmt.Errorf("unsupported expression %T", n)
		}
		return err == nil
	})
	return err
}

var binaryOps = map[token.Token]bool{
	token.ADD: true, token.SUB: true, token.MUL: true, token.QUO: true, token.REM: true,
	token.EQL: true, token.NEQ: true, token.LSS: true, token.GTR: true, token.LEQ: true, token.GEQ: true,
	token.LAND: true, token.LOR: true,
}

func (e *Evaluator) eval(node ast.Expr, variables map[string]interface{}) (interface{}, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		return literal(n)
	case *ast.Ident:
		switch n.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		return variables[n.Name], nil
	case *ast.ParenExpr:
		return e.eval(n.X, variables)
	case *ast.SelectorExpr:
		x, err := e.eval(n.X, variables)
		if err != nil {
			return nil, err
		}
		return getProperty(x, n.Sel.Name), nil
	case *ast.IndexExpr:
		x, err := e.eval(n.X, variables)
		if err != nil {
			return nil, err
		}
		index, err := e.eval(n.Index, variables)
		if err != nil {
			return nil, err
		}
		if key, ok := index.(string); ok {
			return getProperty(x, key), nil
		}
		if !isNumber(index) {
			return nil, fmt.Errorf("invalid index %v", index)
		}
		return getElement(x, toInt(index)), nil
	case *ast.UnaryExpr:
		x, err := e.eval(n.X, variables)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.NOT:
			b, err := Truthy(x)
			if err != nil {
				return nil, err
			}
			return !b, nil
		case token.SUB:
			switch {
			case isInt(x):
				return -toInt(x), nil
			case isNumber(x):
				return -toFloat64(x), nil
			}
			return nil, fmt.Errorf("cannot negate %T", x)
		case token.ADD:
			return x, nil
		}
	case *ast.BinaryExpr:
		return e.binary(n, variables)
	case *ast.CallExpr:
		fn := e.funcs[n.Fun.(*ast.Ident).Name]
		args := make([]interface{}, 0, len(n.Args))
		for _, arg := range n.Args {
			value, err := e.eval(arg, variables)
			if err != nil {
				return nil, err
			}
			args = append(args, value)
		}
		return fn(args...)
	}
	return nil, fmt.Errorf("unsupported expression %T", node)
}

func (e *Evaluator) binary(n *ast.BinaryExpr, variables map[string]interface{}) (interface{}, error) {
	x, err := e.eval(n.X, variables)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case token.LAND, token.LOR:
		left, err := Truthy(x)
		if err != nil {
			return nil, err
		}
		if n.Op == token.LAND && !left {
			return false, nil
		}
		if n.Op == token.LOR && left {
			return true, nil
		}
		y, err := e.eval(n.Y, variables)
		if err != nil {
			return nil, err
		}
		return Truthy(y)
	}
	y, err := e.eval(n.Y, variables)
	if err != nil {
		return nil, err
	}
	x, y = compatible(x, y)
	switch n.Op {
	case token.ADD:
		return add(x, y)
	case token.SUB, token.MUL, token.QUO, token.REM:
		return arithmetic(n.Op, x, y)
	case token.EQL:
		return equal(x, y), nil
	case token.NEQ:
		return !equal(x, y), nil
	}
	cmp, err := compare(x, y)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case token.LSS:
		return cmp < 0, nil
	case token.GTR:
		return cmp > 0, nil
	case token.LEQ:
		return cmp <= 0, nil
	case token.GEQ:
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("unsupported operator %v", n.Op)
}

func literal(n *ast.BasicLit) (interface{}, error) {
	switch n.Kind {
	case token.INT:
		return strconv.Atoi(n.Value)
	case token.FLOAT:
		return strconv.ParseFloat(n.Value, 64)
	case token.STRING:
		return strconv.Unquote(n.Value)
	case token.CHAR:
		value, err := strconv.Unquote(n.Value)
		return value, err
	}
	return nil, fmt.Errorf("unsupported literal %v", n.Value)
}
