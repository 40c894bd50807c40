package toolbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// scriptCallTimeout bounds one invocation of a script-defined tool.
const scriptCallTimeout = 10 * time.Second

// LoadScriptTools evaluates a JavaScript file and returns one Descriptor per
// top-level function it defines. Function names starting with "_" are
// private and skipped. Each tool receives its arguments as a single object
// and must return a string (other return values are stringified).
//
// A load or parse failure is returned to the caller, which reports it as a
// warning and skips the source; it never aborts the session.
func LoadScriptTools(path string) ([]Descriptor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool source %q: %w", path, err)
	}

	vm := goja.New()

	// Snapshot the globals goja provides so only script-defined functions
	// become tools.
	predefined := make(map[string]bool)
	for _, key := range vm.GlobalObject().Keys() {
		predefined[key] = true
	}

	if _, err := vm.RunScript(filepath.Base(path), string(src)); err != nil {
		return nil, fmt.Errorf("evaluating tool source %q: %w", path, err)
	}

	var tools []Descriptor
	for _, key := range vm.GlobalObject().Keys() {
		if predefined[key] || strings.HasPrefix(key, "_") {
			continue
		}
		fn, ok := goja.AssertFunction(vm.GlobalObject().Get(key))
		if !ok {
			continue
		}
		tools = append(tools, scriptTool(vm, path, key, fn))
	}

	if len(tools) == 0 {
		return nil, fmt.Errorf("tool source %q defines no public functions", path)
	}
	return tools, nil
}

func scriptTool(vm *goja.Runtime, path, name string, fn goja.Callable) Descriptor {
	return Descriptor{
		Name: name,
		Description: fmt.Sprintf("User tool %q loaded from %s. "+
			"Arguments are passed as a single object of named values.", name, path),
		Parameters: map[string]interface{}{
			"type": "object",
		},
		Run: func(args map[string]interface{}) (string, error) {
			// The loop is single-threaded, so sharing one VM across the
			// file's tools is safe.
			timer := time.AfterFunc(scriptCallTimeout, func() {
				vm.Interrupt(fmt.Sprintf("tool %q timed out after %s", name, scriptCallTimeout))
			})
			defer timer.Stop()
			defer vm.ClearInterrupt()

			value, err := fn(goja.Undefined(), vm.ToValue(args))
			if err != nil {
				return "", fmt.Errorf("script tool %q: %w", name, err)
			}
			if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
				return "", nil
			}
			return value.String(), nil
		},
	}
}
