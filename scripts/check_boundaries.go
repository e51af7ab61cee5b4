package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a layer inside a context module may import besides
// the standard library. Paths are relative to the context module prefix,
// except entries starting with "//" which are relative to the repo module.
type layerRule struct {
	allowed       []string
	noAdapters    bool
	noRuntimeInfo bool
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed:       []string{"domain"},
		noAdapters:    true,
		noRuntimeInfo: true,
	},
	"application": {
		allowed:       []string{"application", "domain", "ports", "//contracts"},
		noAdapters:    true,
		noRuntimeInfo: true,
	},
	"ports": {
		allowed:       []string{"ports", "domain", "//contracts"},
		noAdapters:    true,
		noRuntimeInfo: true,
	},
	"transport": {
		allowed:       []string{"transport"},
		noAdapters:    true,
		noRuntimeInfo: true,
	},
}

func main() {
	modulePath, err := readModulePath("go.mod")
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary check: %v\n", err)
		os.Exit(2)
	}

	violations := collectViolations(modulePath, "contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func readModulePath(goModPath string) (string, error) {
	raw, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", goModPath, err)
	}
	modulePath := modfile.ModulePath(raw)
	if modulePath == "" {
		return "", fmt.Errorf("%s has no module directive", goModPath)
	}
	return modulePath, nil
}

func collectViolations(modulePath string, root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}

		contextPrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		violations = append(violations, validateFile(path, normalized, parts[3], modulePath, contextPrefix)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string, modulePath string, contextPrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalizedPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		add := func(rule string) {
			violations = append(violations, violation{File: normalizedPath, Line: line, Import: importPath, Rule: rule})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, contextPrefix) {
			add("cross-module imports are forbidden")
		}

		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		if rule.noAdapters && strings.Contains(importPath, "/adapters/") {
			add(layer + " must not import adapters")
		}
		if rule.noRuntimeInfo && hasPrefix(importPath, modulePath+"/internal") {
			add(layer + " must not import runtime infrastructure")
		}
		if isStdlib(importPath) {
			continue
		}
		if !isAllowed(importPath, resolveAllowed(rule.allowed, modulePath, contextPrefix)) {
			add(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func resolveAllowed(entries []string, modulePath string, contextPrefix string) []string {
	resolved := make([]string, 0, len(entries))
	for _, entry := range entries {
		if rest, ok := strings.CutPrefix(entry, "//"); ok {
			resolved = append(resolved, modulePath+"/"+rest)
			continue
		}
		resolved = append(resolved, contextPrefix+"/"+entry)
	}
	return resolved
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
