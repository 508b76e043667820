package configimpact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kubilitics/hqee/pkg/types"
)

func writeFile(t *testing.T, dir, relPath, content string) string {
	t.Helper()
	path := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const sampleDatasourceConfig = `package persistence

type DataSourceConfig struct {
	URL string ` + "`mapstructure:\"spring.datasource.url\"`" + `
}

func (c *DataSourceConfig) Load() string {
	url := os.Getenv("spring.datasource.url")
	if viper.GetBool("spring.datasource.pooled") {
		url = viper.GetString("spring.datasource.url")
	}
	return url
}
`

func TestAnalyzeFindsEnvironmentAndBindingReferencesWithHighSeverity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "internal/persistence/datasource.go", sampleDatasourceConfig)

	analyzer := New(Config{SourceRoot: dir})
	result, err := analyzer.Analyze(context.Background(), "spring.datasource.url")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(result.References) == 0 {
		t.Fatalf("expected at least one reference, got none")
	}

	var sawEnv, sawBinding bool
	for _, ref := range result.References {
		switch ref.Kind {
		case types.RefEnvironmentLookup:
			sawEnv = true
		case types.RefAnnotationInjection:
			sawBinding = true
		}
	}
	if !sawEnv {
		t.Errorf("expected an environment_lookup reference, got %+v", result.References)
	}
	if !sawBinding {
		t.Errorf("expected an annotation_injection reference, got %+v", result.References)
	}

	if result.Severity != types.SeverityHigh {
		t.Errorf("severity = %s, want HIGH (critical persistence component)", result.Severity)
	}
}

func TestAnalyzeFlagsConditionalLookupInsideIfStatement(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "service.go", sampleDatasourceConfig)

	analyzer := New(Config{SourceRoot: dir})
	result, err := analyzer.Analyze(context.Background(), "spring.datasource.url")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var sawConditional bool
	for _, ref := range result.References {
		if ref.Kind == types.RefConditionalActivation {
			sawConditional = true
		}
	}
	if !sawConditional {
		t.Errorf("expected a conditional_activation reference for the lookup inside the if-block, got %+v", result.References)
	}
}

func TestAnalyzeWildcardPrefixMatchesNestedKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "service.go", `package service

func Load() string {
	return os.Getenv("feature.flags.enabled")
}
`)

	analyzer := New(Config{SourceRoot: dir})
	result, err := analyzer.Analyze(context.Background(), "feature.flags.*")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.References) != 1 {
		t.Fatalf("expected 1 reference for wildcard match, got %d", len(result.References))
	}
}

func TestASTAndRegexExtractorsAgreeOnCleanFile(t *testing.T) {
	content := []byte(sampleDatasourceConfig)
	astRefs, err := extractWithAST("datasource.go", content, "spring.datasource.url")
	if err != nil {
		t.Fatalf("extractWithAST: %v", err)
	}
	regexRefs := extractWithRegex("datasource.go", content, "spring.datasource.url")

	astKinds := map[string]bool{}
	for _, r := range astRefs {
		astKinds[r.Kind] = true
	}
	regexKinds := map[string]bool{}
	for _, r := range regexRefs {
		regexKinds[r.Kind] = true
	}
	for kind := range astKinds {
		if !regexKinds[kind] {
			t.Errorf("regex extractor missed kind %s found by AST extractor", kind)
		}
	}
}

func TestFindDatabaseOverridesMatchesConfigRepositoryInterface(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "repo.go", `package persistence

type SettingRepository interface {
	FindDatasourceURL() string
}
`)

	analyzer := New(Config{SourceRoot: dir})
	overrides, err := analyzer.findDatabaseOverrides("spring.datasource.url")
	if err != nil {
		t.Fatalf("findDatabaseOverrides: %v", err)
	}
	if len(overrides) != 1 || overrides[0] != "SettingRepository.FindDatasourceURL" {
		t.Errorf("overrides = %v, want [SettingRepository.FindDatasourceURL]", overrides)
	}
}

func TestResolveFileDefaultsExtractsFromYAMLBesideEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", `spring:
  datasource:
    url: jdbc:postgresql://localhost/app
    pooled: true
`)
	writeFile(t, dir, ".env", `SPRING_DATASOURCE_URL=jdbc:postgresql://localhost/app
OTHER_KEY=ignored
`)

	analyzer := New(Config{PropertyFilePaths: []string{dir}})
	defaults, err := analyzer.resolveFileDefaults("spring.datasource.url")
	if err != nil {
		t.Fatalf("resolveFileDefaults: %v", err)
	}

	var found bool
	for _, v := range defaults {
		if v == "jdbc:postgresql://localhost/app" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a literal default resolved from application.yaml, got %+v", defaults)
	}
}

func TestResolveFileDefaultsIgnoresNonMatchingKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", `server:
  port: 8080
`)

	analyzer := New(Config{PropertyFilePaths: []string{dir}})
	defaults, err := analyzer.resolveFileDefaults("spring.datasource.url")
	if err != nil {
		t.Fatalf("resolveFileDefaults: %v", err)
	}
	if len(defaults) != 0 {
		t.Errorf("expected no defaults, got %+v", defaults)
	}
}

func TestSeverityIsLowWhenNoCriticalComponentAndFewReferences(t *testing.T) {
	refs := []types.ConfigPropertyReference{
		{ContainingFQN: "Widget.Load", Kind: types.RefEnvironmentLookup},
	}
	if got := severity(refs); got != types.SeverityLow {
		t.Errorf("severity = %s, want LOW", got)
	}
}

func TestSeverityIsMediumWithManyDistinctContainers(t *testing.T) {
	var refs []types.ConfigPropertyReference
	for i := 0; i < 6; i++ {
		refs = append(refs, types.ConfigPropertyReference{
			ContainingFQN: filepath.Join("fn", string(rune('A'+i))),
			Kind:          types.RefEnvironmentLookup,
		})
	}
	if got := severity(refs); got != types.SeverityMedium {
		t.Errorf("severity = %s, want MEDIUM", got)
	}
}

func TestIsCriticalMatchesPathAndFQNMarkers(t *testing.T) {
	if !isCritical("internal/auth/login.go", "Widget") {
		t.Error("expected path marker 'auth' to flag critical")
	}
	if !isCritical("service.go", "SecurityManager") {
		t.Error("expected FQN marker 'Security' to flag critical")
	}
	if isCritical("service.go", "Widget") {
		t.Error("expected no marker to not flag critical")
	}
}
