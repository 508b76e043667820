package configimpact

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/kubilitics/hqee/pkg/types"
)

// extractWithAST parses a Go source file and walks its AST looking for
// configuration-property references: os.Getenv/viper.Get* calls
// (environment lookup / property-bag lookup), viper.Sub/UnmarshalKey calls
// (prefix binding), and struct field tags (annotation-style injection).
func extractWithAST(path string, content []byte, property string) ([]types.ConfigPropertyReference, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, 0)
	if err != nil {
		return nil, err
	}

	v := &astVisitor{
		fset:     fset,
		path:     path,
		property: property,
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Body == nil {
				continue
			}
			v.currentFunc = funcFQN(d)
			ast.Walk(v, d.Body)
		case *ast.GenDecl:
			v.inspectStructTags(d)
		}
	}
	return v.refs, nil
}

// astVisitor implements ast.Visitor, tracking control-flow nesting
// (if/for/range/switch) via the push-on-descend/pop-on-nil protocol
// ast.Walk uses to signal "done with this subtree": Visit(nil) is called
// once the children of whatever node Visit returned are fully walked.
type astVisitor struct {
	fset         *token.FileSet
	path         string
	property     string
	refs         []types.ConfigPropertyReference
	currentFunc  string
	controlDepth int
	stack        []bool
}

func (v *astVisitor) Visit(n ast.Node) ast.Visitor {
	if n == nil {
		if len(v.stack) > 0 {
			wasControl := v.stack[len(v.stack)-1]
			v.stack = v.stack[:len(v.stack)-1]
			if wasControl {
				v.controlDepth--
			}
		}
		return nil
	}

	isControl := false
	switch n.(type) {
	case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt:
		isControl = true
		v.controlDepth++
	}
	v.stack = append(v.stack, isControl)

	if call, ok := n.(*ast.CallExpr); ok {
		v.inspectCall(call)
	}
	return v
}

func funcFQN(fn *ast.FuncDecl) string {
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		return exprString(fn.Recv.List[0].Type) + "." + fn.Name.Name
	}
	return fn.Name.Name
}

func exprString(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	default:
		return ""
	}
}

func (v *astVisitor) inspectCall(call *ast.CallExpr) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || len(call.Args) == 0 {
		return
	}
	key, ok := stringLiteral(call.Args[0])
	if !ok || !matchesProperty(key, v.property) {
		return
	}

	recv := exprString(sel.X)
	method := sel.Sel.Name

	var kind string
	switch {
	case recv == "os" && method == "Getenv":
		kind = types.RefEnvironmentLookup
	case recv == "viper" && (method == "Sub" || method == "UnmarshalKey"):
		kind = types.RefPrefixBinding
	case recv == "viper" && strings.HasPrefix(method, "Get"):
		kind = types.RefPropertyBagLookup
	default:
		return
	}

	if v.controlDepth > 0 {
		kind = types.RefConditionalActivation
	}

	pos := v.fset.Position(call.Pos())
	v.refs = append(v.refs, types.ConfigPropertyReference{
		Property:      key,
		ContainingFQN: v.currentFunc,
		ComponentType: inferComponentType(v.path, v.currentFunc),
		Critical:      isCritical(v.path, v.currentFunc),
		Line:          pos.Line,
		Member:        method,
		AccessPattern: accessPatternFor(kind),
		Kind:          kind,
	})
}

// inspectStructTags looks for struct field tags like `mapstructure:"name"`
// or `env:"name"` binding a single field to property — the Go-idiom
// equivalent of an `@Value` field injection.
func (v *astVisitor) inspectStructTags(decl *ast.GenDecl) {
	if decl.Tok != token.TYPE {
		return
	}
	for _, spec := range decl.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			continue
		}
		for _, field := range st.Fields.List {
			if field.Tag == nil {
				continue
			}
			tagValue, err := strconv.Unquote(field.Tag.Value)
			if err != nil {
				continue
			}
			key, found := tagKeyFor(tagValue, "mapstructure")
			if !found {
				key, found = tagKeyFor(tagValue, "env")
			}
			if !found || !matchesProperty(key, v.property) {
				continue
			}
			fieldName := ts.Name.Name
			if len(field.Names) > 0 {
				fieldName = field.Names[0].Name
			}
			pos := v.fset.Position(field.Pos())
			v.refs = append(v.refs, types.ConfigPropertyReference{
				Property:      key,
				ContainingFQN: ts.Name.Name,
				ComponentType: inferComponentType(v.path, ts.Name.Name),
				Critical:      isCritical(v.path, ts.Name.Name),
				Line:          pos.Line,
				Member:        fieldName,
				AccessPattern: "binding",
				Kind:          types.RefAnnotationInjection,
			})
		}
	}
}

func tagKeyFor(tag, tagName string) (string, bool) {
	prefix := tagName + `:"`
	idx := strings.Index(tag, prefix)
	if idx < 0 {
		return "", false
	}
	rest := tag[idx+len(prefix):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	value := rest[:end]
	if comma := strings.IndexByte(value, ','); comma >= 0 {
		value = value[:comma]
	}
	return value, value != "" && value != "-"
}

func stringLiteral(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return value, true
}

func accessPatternFor(kind string) string {
	switch kind {
	case types.RefPrefixBinding:
		return "binding"
	case types.RefConditionalActivation:
		return "conditional"
	case types.RefEnvironmentLookup:
		return "fallback"
	default:
		return "direct"
	}
}
