package evaluator

import (
	"fmt"
	"go/token"
	"math"
	"reflect"
	"strconv"
	"strings"
)

func isInt(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isInt(v)
}

func toInt(v interface{}) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return int(rv.Float())
	case reflect.String:
		i, _ := strconv.Atoi(rv.String())
		return i
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		f, _ := strconv.ParseFloat(rv.String(), 64)
		return f
	}
	return 0
}

// compatible aligns numeric operands: ints stay int, any float widens both.
func compatible(x, y interface{}) (interface{}, interface{}) {
	if isInt(x) && isInt(y) {
		return toInt(x), toInt(y)
	}
	if isNumber(x) && isNumber(y) {
		return toFloat64(x), toFloat64(y)
	}
	return x, y
}

func add(x, y interface{}) (interface{}, error) {
	if s, ok := x.(string); ok {
		return s + stringify(y), nil
	}
	if s, ok := y.(string); ok {
		return stringify(x) + s, nil
	}
	return arithmetic(token.ADD, x, y)
}

func arithmetic(op token.Token, x, y interface{}) (interface{}, error) {
	if !isNumber(x) || !isNumber(y) {
		return nil, fmt.Errorf("invalid operands for %v: %T, %T", op, x, y)
	}
	if isInt(x) && isInt(y) {
		a, b := toInt(x), toInt(y)
		switch op {
		case token.ADD:
			return a + b, nil
		case token.SUB:
			return a - b, nil
		case token.MUL:
			return a * b, nil
		case token.REM:
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return a % b, nil
		}
	}
	a, b := toFloat64(x), toFloat64(y)
	switch op {
	case token.ADD:
		return a + b, nil
	case token.SUB:
		return a - b, nil
	case token.MUL:
		return a * b, nil
	case token.QUO:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return a / b, nil
	case token.REM:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(a, b), nil
	}
	return nil, fmt.Errorf("unsupported operator %v", op)
}

func equal(x, y interface{}) bool {
	if isNumber(x) && isNumber(y) {
		return toFloat64(x) == toFloat64(y)
	}
	return reflect.DeepEqual(x, y)
}

// compare orders numbers and strings; nil sorts as zero value.
func compare(x, y interface{}) (int, error) {
	if x == nil && isNumber(y) {
		x = 0
	}
	if y == nil && isNumber(x) {
		y = 0
	}
	if isNumber(x) && isNumber(y) {
		a, b := toFloat64(x), toFloat64(y)
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	}
	a, okA := x.(string)
	b, okB := y.(string)
	if okA && okB {
		return strings.Compare(a, b), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", x, y)
}

func stringify(v interface{}) string {
	switch actual := v.(type) {
	case nil:
		return ""
	case string:
		return actual
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

// getProperty reads a map entry or an exported struct field (case-insensitive).
func getProperty(obj interface{}, prop string) interface{} {
	if obj == nil {
		return nil
	}
	if aMap, ok := obj.(map[string]interface{}); ok {
		return aMap[prop]
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	switch val.Kind() {
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil
		}
		item := val.MapIndex(reflect.ValueOf(prop).Convert(val.Type().Key()))
		if !item.IsValid() {
			return nil
		}
		return item.Interface()
	case reflect.Struct:
		field := val.FieldByNameFunc(func(name string) bool { return strings.EqualFold(name, prop) })
		if !field.IsValid() || !field.CanInterface() {
			return nil
		}
		return field.Interface()
	}
	return nil
}

func getElement(obj interface{}, index int) interface{} {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	switch val.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if index < 0 || index >= val.Len() {
			return nil
		}
		item := val.Index(index)
		if val.Kind() == reflect.String {
			return string(rune(item.Uint()))
		}
		if !item.CanInterface() {
			return nil
		}
		return item.Interface()
	}
	return nil
}
