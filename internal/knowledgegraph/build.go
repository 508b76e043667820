package knowledgegraph

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kubilitics/hqee/pkg/types"
)

// sourceExtensions lists the file extensions Build scans. Any file outside
// this set is skipped during discovery.
var sourceExtensions = map[string]bool{
	".go": true, ".java": true, ".kt": true, ".ts": true, ".tsx": true,
	".py": true, ".cs": true,
}

var (
	packageDeclRe = regexp.MustCompile(`^\s*package\s+([\w.]+)`)
	typeDeclRe    = regexp.MustCompile(`^\s*(?:public|private|protected|internal)?\s*(?:static\s+|abstract\s+|final\s+)*(class|interface)\s+([A-Za-z_][\w]*)\s*(?:<[^>]*>)?`)
	methodDeclRe  = regexp.MustCompile(`^\s*(?:public|private|protected|internal)?\s*(?:static\s+|final\s+|override\s+|async\s+)*[\w<>\[\]., ]+?\s+([A-Za-z_][\w]*)\s*\(([^)]*)\)\s*\{?\s*$`)
	extendsRe     = regexp.MustCompile(`extends\s+([A-Za-z_][\w.]*)`)
	implementsRe  = regexp.MustCompile(`implements\s+([\w., ]+)`)
)

// controlFlowWords excludes if/for/while/switch/catch lines that would
// otherwise look like a method declaration to methodDeclRe.
var controlFlowWords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "else": true, "try": true, "do": true,
}

// Build walks path (recursing into subdirectories when recursive is true),
// line-scans each supported source file, and populates the graph with the
// entities and relationships it finds. An existing graph is augmented, not
// replaced; callers rebuilding from scratch should construct a fresh Graph.
func (g *Graph) Build(ctx context.Context, path string, recursive bool) error {
	start := time.Now()

	files, err := discoverFiles(path, recursive)
	if err != nil {
		return fmt.Errorf("knowledgegraph: discover files: %w", err)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.buildFile(file); err != nil {
			return fmt.Errorf("knowledgegraph: build %s: %w", file, err)
		}
	}

	g.markReady()
	g.recordRebuild(ctx, start)
	return nil
}

func discoverFiles(root string, recursive bool) ([]string, error) {
	var files []string
	return files, walkForSource(root, recursive, &files)
}

func walkForSource(root string, recursive bool, files *[]string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if recursive {
				if err := walkForSource(full, recursive, files); err != nil {
					return err
				}
			}
			continue
		}
		if sourceExtensions[filepath.Ext(entry.Name())] {
			*files = append(*files, full)
		}
	}
	return nil
}

func (g *Graph) buildFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var packageName string
	var currentType string
	var currentTypeID string

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if packageName == "" {
			if m := packageDeclRe.FindStringSubmatch(line); m != nil {
				packageName = m[1]
				g.addEntity(types.CodeEntity{
					ID:         EntityID(packageName, types.EntityPackage, path),
					SimpleName: packageName,
					FQN:        packageName,
					Type:       types.EntityPackage,
					FilePath:   path,
					StartLine:  lineNo,
					EndLine:    lineNo,
				})
				continue
			}
		}

		if m := typeDeclRe.FindStringSubmatch(line); m != nil {
			kind := types.EntityClass
			if m[1] == "interface" {
				kind = types.EntityInterface
			}
			name := m[2]
			fqn := name
			if packageName != "" {
				fqn = packageName + "." + name
			}
			currentType = name
			currentTypeID = EntityID(fqn, kind, path)
			g.addEntity(types.CodeEntity{
				ID:         currentTypeID,
				SimpleName: name,
				FQN:        fqn,
				Type:       kind,
				FilePath:   path,
				StartLine:  lineNo,
				EndLine:    lineNo,
			})

			if em := extendsRe.FindStringSubmatch(line); em != nil {
				targetName := strings.TrimSpace(em[1])
				g.addRelationship(types.CodeRelationship{
					SourceID: currentTypeID,
					TargetID: EntityID(targetName, types.EntityClass, ""),
					Type:     types.RelExtends,
				})
			}
			if im := implementsRe.FindStringSubmatch(line); im != nil {
				for _, targetName := range strings.Split(im[1], ",") {
					targetName = strings.TrimSpace(targetName)
					if targetName == "" {
						continue
					}
					g.addRelationship(types.CodeRelationship{
						SourceID: currentTypeID,
						TargetID: EntityID(targetName, types.EntityInterface, ""),
						Type:     types.RelImplements,
					})
				}
			}
			continue
		}

		if m := methodDeclRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			if controlFlowWords[name] || currentType == "" {
				continue
			}
			fqn := currentType + "." + name
			methodID := EntityID(fqn, types.EntityMethod, path)
			g.addEntity(types.CodeEntity{
				ID:         methodID,
				SimpleName: name,
				FQN:        fqn,
				Type:       types.EntityMethod,
				FilePath:   path,
				StartLine:  lineNo,
				EndLine:    lineNo,
			})
			g.addRelationship(types.CodeRelationship{
				SourceID: currentTypeID,
				TargetID: methodID,
				Type:     types.RelContains,
			})
		}
	}
	return scanner.Err()
}
