package configimpact

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// resolveFileDefaults discovers property/YAML files under the configured
// resource paths and extracts literal defaults for property (or every key
// matching a wildcard prefix), keyed by the file they were found in.
func (a *Analyzer) resolveFileDefaults(property string) (map[string]string, error) {
	defaults := make(map[string]string)

	for _, root := range a.cfg.PropertyFilePaths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil //nolint:nilerr // best-effort resource scan
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				collectYAMLDefaults(path, property, defaults)
			case ".env", ".properties":
				collectLineDefaults(path, property, defaults)
			}
			return nil
		})
		if err != nil {
			return defaults, err
		}
	}
	return defaults, nil
}

func collectYAMLDefaults(path, property string, out map[string]string) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return
	}
	flat := make(map[string]string)
	flattenYAML("", doc, flat)
	for key, value := range flat {
		if matchesProperty(key, property) {
			out[path+"#"+key] = value
		}
	}
}

func flattenYAML(prefix string, node interface{}, out map[string]string) {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			flattenYAML(full, child, out)
		}
	case map[interface{}]interface{}:
		for key, child := range v {
			ks, ok := key.(string)
			if !ok {
				continue
			}
			full := ks
			if prefix != "" {
				full = prefix + "." + ks
			}
			flattenYAML(full, child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = toDisplayString(v)
		}
	}
}

func toDisplayString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func collectLineDefaults(path, property string, out map[string]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if matchesProperty(key, property) {
			out[path+"#"+key] = value
		}
	}
}
