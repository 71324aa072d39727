// Package validator implements the Static Validator: a deny-list scan over
// candidate Go skill source ahead of dynamic execution. It never runs the
// candidate; it only inspects its parsed syntax tree.
//
// There is no ast-grep-equivalent static analysis library in the retrieved
// dependency pack, so this stays on go/parser and go/ast: a deliberate
// stdlib-only choice, not an oversight.
package validator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/flexigpt/skillcore-go/spec"
)

// deniedImports blocks packages that let a candidate escape the sandbox's
// intended boundary: process control, raw network sockets, and dynamic
// plugin loading.
var deniedImports = map[string]string{
	"os/exec":       "process execution is reserved for the sandboxed subprocess path",
	"net":           "raw network access is denied for candidate skills",
	"net/http":      "outbound network access is denied for candidate skills",
	"plugin":        "dynamic plugin loading is denied",
	"syscall":       "direct syscalls are denied",
	"unsafe":        "unsafe memory access is denied",
	"os/signal":     "process signal handling is denied",
	"debug/elf":     "binary introspection is denied",
	"runtime/debug": "runtime introspection is denied",
}

// deniedCalls blocks specific call expressions by qualified name, for
// standard-library functions that escape the deny-listed-import check (e.g.
// reached via a re-exporting wrapper package) or that are otherwise
// dangerous regardless of which package exposes them.
var deniedCalls = map[string]string{
	"os.Exit":        "candidates must return, not terminate the process",
	"os.RemoveAll":   "recursive filesystem deletion is denied",
	"os.Remove":      "filesystem deletion is denied",
	"os.Chmod":       "permission mutation is denied",
	"os.Chown":       "ownership mutation is denied",
	"reflect.ValueOf": "reflective attribute mutation is denied",
}

// Outcome is an alias of spec.StaticOutcome for discoverability within the
// package; callers should use spec.StaticOutcome directly.
type Outcome = spec.StaticOutcome

// ValidateSource statically validates Go source for a candidate skill. The
// filename is used only for diagnostics; src is parsed standalone.
func ValidateSource(filename string, src []byte) (spec.StaticOutcome, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return spec.StaticOutcome{}, spec.NewError(spec.KindInputValidation, "validator.ValidateSource", err)
	}

	var violations []spec.Violation

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if reason, denied := deniedImports[path]; denied {
			pos := fset.Position(imp.Pos())
			violations = append(violations, spec.Violation{
				RuleID:      "denied-import:" + path,
				Description: reason,
				Line:        pos.Line,
				Snippet:     imp.Path.Value,
			})
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		name := qualifiedCallName(call)
		if name == "" {
			return true
		}
		if reason, denied := deniedCalls[name]; denied {
			pos := fset.Position(call.Pos())
			violations = append(violations, spec.Violation{
				RuleID:      "denied-call:" + name,
				Description: reason,
				Line:        pos.Line,
				Snippet:     name + "(...)",
			})
		}
		return true
	})

	return spec.StaticOutcome{
		Passed:     len(violations) == 0,
		Violations: violations,
	}, nil
}

// ValidateSyntax parses src only to confirm it is syntactically well
// formed, without running the deny-list scan. It backs the watcher's
// pre-sync syntax gate, grounded on the teacher's pattern of failing fast
// on a malformed file rather than queuing a sync that would only fail
// downstream.
func ValidateSyntax(filename string, src []byte) error {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution); err != nil {
		return spec.NewError(spec.KindInputValidation, "validator.ValidateSyntax", err)
	}
	return nil
}

// FileValidator adapts ValidateSyntax to the watcher's Validator interface,
// reading the candidate off disk. Non-Go files are accepted unconditionally:
// the deny-list scan only applies to in-process Go candidates, per the
// Immune Controller's static-then-dynamic pipeline.
type FileValidator struct{}

// ValidateSyntax implements watcher.Validator.
func (FileValidator) ValidateSyntax(path string) error {
	if filepath.Ext(path) != ".go" {
		return nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return spec.NewError(spec.KindInputValidation, "validator.ValidateSyntax", err)
	}
	return ValidateSyntax(path, src)
}

func qualifiedCallName(call *ast.CallExpr) string {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s.%s", ident.Name, sel.Sel.Name)
}
