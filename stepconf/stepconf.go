package stepconf

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/parseutil"
)

// ErrNotStructPtr states that a struct pointer is required.
var ErrNotStructPtr = errors.New("must be a pointer to a struct")

// ParseError occurs when a struct field cannot be set.
type ParseError struct {
	Field string
	Value string
	Err   error
}

// Error implements builtin errors.Error.
func (e *ParseError) Error() string {
	segments := []string{e.Field}
	if e.Value != "" {
		segments = append(segments, e.Value)
	}
	segments = append(segments, e.Err.Error())
	return strings.Join(segments, ": ")
}

// Secret variables are not shown in the printed output.
type Secret string

const secret = "*****"

// String implements fmt.Stringer.String.
// When a Secret is printed, it's masking the underlying string with asterisks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secret
}

// EnvGetter ...
type EnvGetter interface {
	Get(key string) string
}

type osEnvGetter struct{}

func (osEnvGetter) Get(key string) string {
	return os.Getenv(key)
}

// Parse populates a struct with the retrieved values from environment variables
// described by struct tags and applies the defined validations.
func Parse(conf interface{}) error {
	return parse(conf, osEnvGetter{})
}

func parse(conf interface{}, envGetter EnvGetter) error {
	c := reflect.ValueOf(conf)
	if c.Kind() != reflect.Ptr {
		return ErrNotStructPtr
	}
	c = c.Elem()
	if c.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	t := c.Type()

	var errs []*ParseError
	for i := 0; i < c.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("env")
		if !ok {
			continue
		}
		key, constraint := parseTag(tag)
		value := envGetter.Get(key)

		if err := setField(c.Field(i), value, constraint); err != nil {
			errs = append(errs, &ParseError{t.Field(i).Name, value, err})
		}
	}
	if len(errs) > 0 {
		errorString := "failed to parse config:"
		for _, err := range errs {
			errorString += fmt.Sprintf("\n- %s", err)
		}
		return errors.New(errorString)
	}

	return nil
}

// parseTag splits a struct field's env tag into its name and option.
func parseTag(tag string) (string, string) {
	if idx := strings.Index(tag, ","); idx != -1 {
		return tag[:idx], tag[idx+1:]
	}
	return tag, ""
}

func setField(field reflect.Value, value, constraint string) error {
	if err := validateConstraint(value, constraint); err != nil {
		return err
	}

	if value == "" {
		return nil
	}

	if field.Kind() == reflect.Ptr {
		// If field is a pointer type, then set its value to be a pointer to a new zero value, matching field underlying type.
		var dePtrdType = field.Type().Elem()
		var newPtrType = reflect.New(dePtrdType)
		field.Set(newPtrType)
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseutil.ParseBool(value)
		if err != nil {
			return errors.New("can't convert to bool")
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return errors.New("can't convert to int")
		}
		field.SetInt(n)
	case reflect.Slice:
		field.Set(reflect.ValueOf(strings.Split(value, "|")))
	default:
		return fmt.Errorf("type is not supported (%s)", field.Kind())
	}
	return nil
}

func validateConstraint(value, constraint string) error {
	switch {
	case constraint == "":
		break
	case constraint == "required":
		if value == "" {
			return errors.New("required variable is not present")
		}
	case constraint == "file", constraint == "dir":
		if err := checkPath(value, constraint == "dir"); err != nil {
			return err
		}
	case strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]"):
		options := valueOptions(constraint)
		if !contains(value, options) {
			return fmt.Errorf("value is not in value options (%s)", constraint)
		}
	default:
		return fmt.Errorf("invalid constraint (%s)", constraint)
	}
	return nil
}

func checkPath(path string, dir bool) error {
	file, err := os.Stat(path)
	if err != nil {
		return errors.New("file not exist")
	}
	if dir && !file.IsDir() {
		return errors.New("not a directory")
	}
	return nil
}

// valueOptions extracts the allowed values from an opt[...] constraint.
// Options containing a comma can be wrapped in single quotes:
// opt[first,second,'third,fourth'].
func valueOptions(constraint string) []string {
	list := strings.TrimSuffix(strings.TrimPrefix(constraint, "opt["), "]")

	var options []string
	var current strings.Builder
	quoted := false
	for _, r := range list {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			options = append(options, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	options = append(options, current.String())
	return options
}

func contains(value string, options []string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
