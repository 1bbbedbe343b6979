package event

import (
	"fmt"
	"reflect"

	"github.com/viant/structology/conv"
)

var converter = newConverter()

func newConverter() *conv.Converter {
	options := conv.DefaultOptions()
	options.IgnoreUnmapped = true
	return conv.NewConverter(options)
}

// Decode converts event data (a typed value in process, or a generic map
// after a wire round trip) into target, which must be a pointer.
func Decode(data interface{}, target interface{}) error {
	if data == nil {
		return fmt.Errorf("event data is empty")
	}
	dest := reflect.ValueOf(target)
	if dest.Kind() != reflect.Ptr || dest.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", target)
	}
	switch src := reflect.ValueOf(data); src.Type() {
	case dest.Type():
		dest.Elem().Set(src.Elem())
		return nil
	case dest.Elem().Type():
		dest.Elem().Set(src)
		return nil
	}
	return converter.Convert(data, target)
}
