// Package codegen renders a compiled server's ServerSpec into the
// Python function library MFP hands to the sandbox: one plain function
// per endpoint, a thin requests-based HTTP call, and nothing else.
package codegen

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/mfp-dev/mfp/internal/spec"
)

var (
	headerTmpl = template.Must(template.New("header").Parse(fileHeaderTemplate))
	funcTmpl   = template.Must(template.New("function").Parse(functionTemplate))

	envNameRe = regexp.MustCompile(`[^A-Za-z0-9]+`)
	pathVarRe = regexp.MustCompile(`\{([^{}]+)\}`)
)

// RenderedFunction is what the compiler needs, per endpoint, to build a
// FunctionInfo once the file has been written to disk.
type RenderedFunction struct {
	Name       string
	Signature  string
	Parameters []string
	Returns    string
	Summary    string
}

// Result is the output of Render: the full functions.py content plus
// per-function metadata in the same order they appear in the file.
type Result struct {
	FunctionsPy []byte
	Functions   []RenderedFunction
}

type headerData struct {
	ServerName    string
	BaseURL       string
	SourceHashHex string
	EnvName       string
}

type paramView struct {
	Name       string
	PySafeName string
}

type funcData struct {
	OperationID  string
	ParamList    string
	Summary      string
	Method       string
	Path         string
	PathExpr     string
	QueryParams  []paramView
	HeaderParams []paramView
	HasBody      bool
}

// EnvName returns the environment-variable-safe form of a server name,
// e.g. "petstore-v2" -> "PETSTORE_V2", used to build
// MFP_<NAME>_BASE_URL and MFP_<NAME>_AUTH.
func EnvName(serverName string) string {
	name := envNameRe.ReplaceAllString(serverName, "_")
	return strings.ToUpper(strings.Trim(name, "_"))
}

func toPyType(t string) string {
	switch t {
	case "integer":
		return "int"
	case "number":
		return "float"
	case "boolean":
		return "bool"
	case "array":
		return "list"
	case "object":
		return "dict"
	default:
		return "str"
	}
}

// Render produces the Python source for server's entire function
// library. Endpoints are rendered in ServerSpec.Endpoints order, which
// BuildServerSpec already produces deterministically (sorted paths,
// fixed method order).
func Render(server *spec.ServerSpec) (*Result, error) {
	if server == nil {
		return nil, fmt.Errorf("codegen: nil server spec")
	}

	var buf bytes.Buffer
	if err := headerTmpl.Execute(&buf, headerData{
		ServerName:    server.Name,
		BaseURL:       server.BaseURL,
		SourceHashHex: server.SourceHashHex,
		EnvName:       EnvName(server.Name),
	}); err != nil {
		return nil, fmt.Errorf("codegen: render header: %w", err)
	}

	functions := make([]RenderedFunction, 0, len(server.Endpoints))

	for _, ep := range server.Endpoints {
		ordered := ep.OrderedParameters()

		var pathParams, queryParams, headerParams []spec.ParamSpec
		for _, p := range ordered {
			switch p.In {
			case "path":
				pathParams = append(pathParams, p)
			case "query":
				queryParams = append(queryParams, p)
			case "header":
				headerParams = append(headerParams, p)
			}
		}

		paramDecls := make([]string, 0, len(ordered)+1)
		paramNames := make([]string, 0, len(ordered))
		for _, p := range ordered {
			pyType := toPyType(p.Type)
			paramNames = append(paramNames, p.PySafeName)
			if p.Required {
				paramDecls = append(paramDecls, fmt.Sprintf("%s: %s", p.PySafeName, pyType))
			} else {
				paramDecls = append(paramDecls, fmt.Sprintf("%s: Optional[%s] = None", p.PySafeName, pyType))
			}
		}
		hasBody := ep.RequestBody != nil
		if hasBody {
			paramDecls = append(paramDecls, "body: Optional[dict[str, Any]] = None")
			paramNames = append(paramNames, "body")
		}

		safeByName := make(map[string]string, len(pathParams))
		for _, p := range pathParams {
			safeByName[p.Name] = p.PySafeName
		}
		pathExpr := pathVarRe.ReplaceAllStringFunc(ep.Path, func(m string) string {
			if safe, ok := safeByName[pathVarRe.FindStringSubmatch(m)[1]]; ok {
				return "{" + safe + "}"
			}
			return m
		})

		toViews := func(params []spec.ParamSpec) []paramView {
			views := make([]paramView, 0, len(params))
			for _, p := range params {
				views = append(views, paramView{Name: p.Name, PySafeName: p.PySafeName})
			}
			return views
		}

		var fbuf bytes.Buffer
		if err := funcTmpl.Execute(&fbuf, funcData{
			OperationID:  ep.OperationID,
			ParamList:    strings.Join(paramDecls, ", "),
			Summary:      strings.TrimSpace(ep.Summary),
			Method:       string(ep.Method),
			Path:         ep.Path,
			PathExpr:     pathExpr,
			QueryParams:  toViews(queryParams),
			HeaderParams: toViews(headerParams),
			HasBody:      hasBody,
		}); err != nil {
			return nil, fmt.Errorf("codegen: render function %s: %w", ep.OperationID, err)
		}
		buf.Write(fbuf.Bytes())
		_ = pathParams // path params are consumed via the f-string, not query/header injection

		functions = append(functions, RenderedFunction{
			Name:       ep.OperationID,
			Signature:  fmt.Sprintf("%s(%s)", ep.OperationID, strings.Join(paramDecls, ", ")),
			Parameters: paramNames,
			Returns:    "Any",
			Summary:    strings.TrimSpace(ep.Summary),
		})
	}

	return &Result{FunctionsPy: buf.Bytes(), Functions: functions}, nil
}
