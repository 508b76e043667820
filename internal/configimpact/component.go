package configimpact

import (
	"path/filepath"
	"strings"
)

// inferComponentType guesses a component's architectural role from its
// file name and enclosing function/type name, the Go-idiom equivalent of
// inferring it from Spring stereotype annotations.
func inferComponentType(path, fqn string) string {
	base := strings.ToLower(filepath.Base(path))
	name := strings.ToLower(fqn)

	switch {
	case strings.Contains(base, "handler") || strings.Contains(base, "controller") || strings.Contains(name, "handler"):
		return "Controller"
	case strings.Contains(base, "repository") || strings.Contains(base, "store") || strings.Contains(name, "repository"):
		return "Repository"
	case strings.Contains(base, "config") || strings.Contains(name, "config"):
		return "Configuration"
	case strings.Contains(base, "service") || strings.Contains(name, "service"):
		return "Service"
	case strings.Contains(base, "component") || strings.Contains(name, "component"):
		return "Component"
	default:
		return "Other"
	}
}

// criticalPackageMarkers are the path segments that, per §4.8, flag a
// component as critical regardless of its inferred role.
var criticalPackageMarkers = []string{"security", "auth", "core", "persistence"}

func isCritical(path, fqn string) bool {
	lowerPath := strings.ToLower(filepath.ToSlash(path))
	for _, marker := range criticalPackageMarkers {
		if strings.Contains(lowerPath, marker) {
			return true
		}
	}
	lowerFQN := strings.ToLower(fqn)
	for _, marker := range criticalPackageMarkers {
		if strings.Contains(lowerFQN, marker) {
			return true
		}
	}
	return false
}
