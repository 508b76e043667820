package configimpact

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"
)

var dbConfigNameMarkers = []string{"config", "setting", "option"}

// findDatabaseOverrides looks for a repository-style interface (named like
// *Config*, *Setting*, or *Option*) with a finder method that references
// property's leaf name, flagging it as a potential dynamic override a
// caller should check in addition to any static default.
func (a *Analyzer) findDatabaseOverrides(property string) ([]string, error) {
	files, err := discoverGoFiles(a.cfg.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("configimpact: discover source files: %w", err)
	}

	leaf := strings.ToLower(leafName(property))
	var overrides []string

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, content, 0)
		if err != nil {
			continue
		}

		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				it, ok := ts.Type.(*ast.InterfaceType)
				if !ok || !looksLikeConfigRepository(ts.Name.Name) {
					continue
				}
				for _, method := range it.Methods.List {
					for _, name := range method.Names {
						if strings.Contains(strings.ToLower(name.Name), leaf) {
							overrides = append(overrides, fmt.Sprintf("%s.%s", ts.Name.Name, name.Name))
						}
					}
				}
			}
		}
	}
	return overrides, nil
}

func looksLikeConfigRepository(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range dbConfigNameMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
