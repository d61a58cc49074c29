package stepconf

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitrise-io/go-utils/colorstring"
)

const unset = "<unset>"

// Print the name of the struct with Title case in blue color with followed by a newline,
// then print all fields formatted as '- field name: field value` separated by newline.
func Print(config interface{}) {
	fmt.Print(toString(config))
}

func valueString(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		return valueString(v.Elem())
	}
	if v.IsZero() {
		return ""
	}
	return fmt.Sprintf("%v", v.Interface())
}

// returns the name of the struct with Title case in blue color followed by a newline,
// then print all fields formatted as '- field name: field value` separated by newline.
func toString(config interface{}) string {
	v := reflect.ValueOf(config)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	str := fmt.Sprint(colorstring.Bluef("%s:\n", titled(t.Name())))
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Name
		if tag, ok := t.Field(i).Tag.Lookup("env"); ok {
			key, _ = parseTag(tag)
		}
		value := valueString(v.Field(i))
		if value == "" {
			value = unset
		}
		str += fmt.Sprintf("- %s: %s\n", key, value)
	}

	return str
}

func titled(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
