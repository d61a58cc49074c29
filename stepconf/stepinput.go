package stepconf

// InputParser populates a config struct from `env:` tagged fields.
type InputParser interface {
	Parse(input interface{}) error
}

type inputParser struct {
	envGetter EnvGetter
}

// NewInputParser returns a parser reading values through the given env
// source, so deploy configs can be parsed against a fake environment in
// tests.
func NewInputParser(envGetter EnvGetter) InputParser {
	return inputParser{envGetter: envGetter}
}

// Parse ...
func (p inputParser) Parse(input interface{}) error {
	return parse(input, p.envGetter)
}
