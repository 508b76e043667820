package configimpact

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/kubilitics/hqee/pkg/types"
)

var (
	getenvRe    = regexp.MustCompile(`os\.Getenv\(\s*"([^"]+)"\s*\)`)
	viperGetRe  = regexp.MustCompile(`viper\.Get\w*\(\s*"([^"]+)"\s*\)`)
	viperSubRe  = regexp.MustCompile(`viper\.(?:Sub|UnmarshalKey)\(\s*"([^"]+)"`)
	mapstructRe = regexp.MustCompile(`mapstructure:"([^",]+)`)
	envTagRe    = regexp.MustCompile(`env:"([^",]+)`)
)

var controlFlowLineRe = regexp.MustCompile(`^\s*(if|for)\b`)

// extractWithRegex scans raw source text line by line for the same
// reference kinds the AST extractor looks for. It exists as a fast,
// parse-failure-tolerant fallback; §4.8 requires the two extractors to
// agree on the reference kinds they enumerate for a file that parses
// cleanly.
func extractWithRegex(path string, content []byte, property string) []types.ConfigPropertyReference {
	var refs []types.ConfigPropertyReference

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	currentFunc := ""
	funcHeaderRe := regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)

	lineNo := 0
	inControl := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := funcHeaderRe.FindStringSubmatch(line); m != nil {
			currentFunc = m[1]
		}
		if controlFlowLineRe.MatchString(line) {
			inControl++
		}
		if strings.Contains(line, "}") {
			if inControl > 0 {
				inControl--
			}
		}

		refs = append(refs, matchRef(line, lineNo, path, currentFunc, property, inControl > 0, getenvRe, types.RefEnvironmentLookup)...)
		refs = append(refs, matchRef(line, lineNo, path, currentFunc, property, inControl > 0, viperSubRe, types.RefPrefixBinding)...)
		refs = append(refs, matchRef(line, lineNo, path, currentFunc, property, inControl > 0, viperGetRe, types.RefPropertyBagLookup)...)
		refs = append(refs, matchTagRef(line, lineNo, path, currentFunc, property, mapstructRe)...)
		refs = append(refs, matchTagRef(line, lineNo, path, currentFunc, property, envTagRe)...)
	}
	return refs
}

func matchRef(line string, lineNo int, path, fqn, property string, conditional bool, re *regexp.Regexp, kind string) []types.ConfigPropertyReference {
	m := re.FindStringSubmatch(line)
	if m == nil || !matchesProperty(m[1], property) {
		return nil
	}
	if conditional {
		kind = types.RefConditionalActivation
	}
	return []types.ConfigPropertyReference{{
		Property:      m[1],
		ContainingFQN: fqn,
		ComponentType: inferComponentType(path, fqn),
		Critical:      isCritical(path, fqn),
		Line:          lineNo,
		AccessPattern: accessPatternFor(kind),
		Kind:          kind,
	}}
}

func matchTagRef(line string, lineNo int, path, fqn, property string, re *regexp.Regexp) []types.ConfigPropertyReference {
	m := re.FindStringSubmatch(line)
	if m == nil || !matchesProperty(m[1], property) {
		return nil
	}
	return []types.ConfigPropertyReference{{
		Property:      m[1],
		ContainingFQN: fqn,
		ComponentType: inferComponentType(path, fqn),
		Critical:      isCritical(path, fqn),
		Line:          lineNo,
		AccessPattern: "binding",
		Kind:          types.RefAnnotationInjection,
	}}
}
