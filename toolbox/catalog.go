package toolbox

import (
	"fmt"
	"strings"
	"time"
)

// A named tool spec selects a declared group from this catalog, optionally
// with constructor-style arguments, e.g. "devtools" or "Time(utc=true)".
// Arbitrary code is never loaded by name; only these entries resolve.
var catalog = map[string]func(args map[string]string) []Descriptor{
	"devtools": func(map[string]string) []Descriptor { return BuiltinTools() },
	"time":     timeTools,
}

// ResolveSpec resolves a named tool spec against the catalog. Unknown names
// and malformed specs are errors the caller reports as warnings.
func ResolveSpec(spec string) ([]Descriptor, error) {
	name, args, err := parseSpec(spec)
	if err != nil {
		return nil, err
	}
	build, ok := catalog[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown tool spec %q", name)
	}
	return build(args), nil
}

// parseSpec splits "Name" or "Name(key=value, ...)" into a name and an
// argument map.
func parseSpec(spec string) (string, map[string]string, error) {
	spec = strings.TrimSpace(spec)
	open := strings.Index(spec, "(")
	if open == -1 {
		if spec == "" {
			return "", nil, fmt.Errorf("empty tool spec")
		}
		return spec, nil, nil
	}
	if !strings.HasSuffix(spec, ")") {
		return "", nil, fmt.Errorf("malformed tool spec %q: missing closing parenthesis", spec)
	}

	name := strings.TrimSpace(spec[:open])
	if name == "" {
		return "", nil, fmt.Errorf("malformed tool spec %q: missing name", spec)
	}

	args := make(map[string]string)
	inner := strings.TrimSpace(spec[open+1 : len(spec)-1])
	if inner == "" {
		return name, args, nil
	}
	for _, pair := range strings.Split(inner, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return "", nil, fmt.Errorf("malformed tool spec %q: argument %q is not key=value", spec, pair)
		}
		args[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return name, args, nil
}

func timeTools(args map[string]string) []Descriptor {
	utc := args["utc"] == "true"
	return []Descriptor{{
		Name:        "current_time",
		Description: "Return the current date and time.",
		Parameters: objectSchema(nil, map[string]interface{}{
			"format": stringProp("Go reference time layout. Default: RFC 3339."),
		}),
		Run: func(callArgs map[string]interface{}) (string, error) {
			layout, _ := StringArg(callArgs, "format")
			if layout == "" {
				layout = time.RFC3339
			}
			now := time.Now()
			if utc {
				now = now.UTC()
			}
			return now.Format(layout), nil
		},
	}}
}
