package spec

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mfp-dev/mfp/internal/hashutil"
)

var nonIdentRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

var pyKeywords = map[string]struct{}{
	"False": {}, "None": {}, "True": {}, "and": {}, "as": {}, "assert": {}, "async": {}, "await": {},
	"break": {}, "class": {}, "continue": {}, "def": {}, "del": {}, "elif": {}, "else": {}, "except": {},
	"finally": {}, "for": {}, "from": {}, "global": {}, "if": {}, "import": {}, "in": {}, "is": {},
	"lambda": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {}, "raise": {}, "return": {}, "try": {},
	"while": {}, "with": {}, "yield": {},
}

// pySafeName turns an arbitrary wire name into a valid Python identifier:
// non-alphanumerics collapse to underscores, a leading digit gets a
// leading underscore, and a reserved word gets a trailing underscore.
func pySafeName(name string) string {
	name = nonIdentRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "param"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	if _, reserved := pyKeywords[name]; reserved {
		name += "_"
	}
	return name
}

// sanitizeOperationID synthesizes an operation id for endpoints whose
// source document left operationId blank: "{method}_{path}" with every
// non-identifier character in path collapsed to a single underscore.
func sanitizeOperationID(method HTTPMethod, path string) string {
	sanitizedPath := strings.Trim(nonIdentRe.ReplaceAllString(path, "_"), "_")
	return strings.ToLower(string(method)) + "_" + sanitizedPath
}

func paramKey(in, name string) string { return in + ":" + name }

func schemaTypeString(v *openapi3.Schema) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.Type)
}

func toParamSpec(pref *openapi3.ParameterRef) *ParamSpec {
	if pref == nil || pref.Value == nil {
		return nil
	}
	p := pref.Value
	ps := &ParamSpec{
		Name:        strings.TrimSpace(p.Name),
		In:          strings.TrimSpace(p.In),
		Required:    p.Required,
		Description: strings.TrimSpace(p.Description),
	}
	ps.PySafeName = pySafeName(ps.Name)
	if p.Schema != nil && p.Schema.Value != nil {
		ps.Type = schemaTypeString(p.Schema.Value)
		if p.Schema.Value.Default != nil {
			ps.Default = p.Schema.Value.Default
		}
	}
	return ps
}

// toSchemaRef resolves ref one level deep only: it reports the shape's
// top-level type and description and never recurses into Properties,
// matching the one-$ref-level policy MFP applies to request/response
// bodies.
func toSchemaRef(ref *openapi3.SchemaRef) *SchemaRef {
	if ref == nil {
		return nil
	}
	if ref.Value == nil {
		return &SchemaRef{Type: "object"}
	}
	return &SchemaRef{
		Type:        schemaTypeString(ref.Value),
		Description: strings.TrimSpace(ref.Value.Description),
	}
}

// buildResponseFields flattens a response schema's properties into
// ResponseField entries. depth caps at 1: a field's own properties are
// captured once as Nested, anything deeper is dropped.
func buildResponseFields(ref *openapi3.SchemaRef, depth int) []ResponseField {
	if ref == nil || ref.Value == nil || depth > 1 {
		return nil
	}
	v := ref.Value
	if len(v.Properties) == 0 {
		return nil
	}
	keys := make([]string, 0, len(v.Properties))
	for name := range v.Properties {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	fields := make([]ResponseField, 0, len(keys))
	for _, name := range keys {
		p := v.Properties[name]
		f := ResponseField{Name: name}
		if p != nil && p.Value != nil {
			f.Type = schemaTypeString(p.Value)
			f.Description = strings.TrimSpace(p.Value.Description)
			f.Nested = buildResponseFields(p, depth+1)
		}
		fields = append(fields, f)
	}
	return fields
}

func firstMediaType(content openapi3.Content) *openapi3.MediaType {
	if len(content) == 0 {
		return nil
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return content[keys[0]]
}

func firstBodySchemaRef(content openapi3.Content) *SchemaRef {
	mt := firstMediaType(content)
	if mt == nil {
		return nil
	}
	return toSchemaRef(mt.Schema)
}

func firstBodyFields(content openapi3.Content) []ResponseField {
	mt := firstMediaType(content)
	if mt == nil {
		return nil
	}
	return buildResponseFields(mt.Schema, 0)
}

// BuildServerSpec converts a loaded OpenAPI v3 document into a
// ServerSpec scoped to source. When source.IsReadOnly, endpoints with a
// mutating HTTPMethod are dropped entirely rather than compiled and
// marked — a read-only source never sees a mutating call in its
// function library.
func BuildServerSpec(ctx context.Context, doc *openapi3.T, source SwaggerSource, raw []byte) (*ServerSpec, error) {
	_ = ctx
	if doc == nil {
		return nil, &SpecError{Code: InputError, Message: "spec: nil document", Location: source.Location()}
	}

	server := &ServerSpec{
		Name:       source.Name,
		BaseURL:    source.BaseURL,
		IsReadOnly: source.IsReadOnly,
	}
	sum := hashutil.SourceHash(raw)
	server.SourceHash = sum
	server.SourceHashHex = hashutil.HexString(sum)

	if doc.Paths == nil {
		return server, nil
	}

	pathKeys := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item := doc.Paths[p]
		if item == nil {
			continue
		}

		baseParams := make(map[string]*ParamSpec)
		for _, pref := range item.Parameters {
			if ps := toParamSpec(pref); ps != nil {
				baseParams[paramKey(ps.In, ps.Name)] = ps
			}
		}

		ops := []struct {
			m HTTPMethod
			o *openapi3.Operation
		}{
			{GET, item.Get},
			{POST, item.Post},
			{PUT, item.Put},
			{DELETE, item.Delete},
			{PATCH, item.Patch},
		}

		for _, pair := range ops {
			if pair.o == nil {
				continue
			}
			if source.IsReadOnly && pair.m.Mutating() {
				continue
			}

			merged := make(map[string]*ParamSpec, len(baseParams))
			for k, v := range baseParams {
				merged[k] = v
			}
			for _, pref := range pair.o.Parameters {
				if ps := toParamSpec(pref); ps != nil {
					merged[paramKey(ps.In, ps.Name)] = ps
				}
			}
			paramKeys := make([]string, 0, len(merged))
			for k := range merged {
				paramKeys = append(paramKeys, k)
			}
			sort.Strings(paramKeys)
			params := make([]ParamSpec, 0, len(paramKeys))
			for _, k := range paramKeys {
				params = append(params, *merged[k])
			}

			var body *SchemaRef
			if pair.o.RequestBody != nil && pair.o.RequestBody.Value != nil {
				body = firstBodySchemaRef(pair.o.RequestBody.Value.Content)
			}

			var responses map[string]ResponseSpec
			if pair.o.Responses != nil {
				responses = make(map[string]ResponseSpec, len(pair.o.Responses))
				for code, rref := range pair.o.Responses {
					if rref == nil || rref.Value == nil {
						continue
					}
					desc := ""
					if rref.Value.Description != nil {
						desc = strings.TrimSpace(*rref.Value.Description)
					}
					responses[code] = ResponseSpec{
						Description: desc,
						Fields:      firstBodyFields(rref.Value.Content),
					}
				}
			}

			opID := strings.TrimSpace(pair.o.OperationID)
			if opID == "" {
				opID = sanitizeOperationID(pair.m, p)
			} else {
				opID = pySafeName(opID)
			}

			server.Endpoints = append(server.Endpoints, EndpointSpec{
				OperationID: opID,
				Method:      pair.m,
				Path:        p,
				Summary:     strings.TrimSpace(pair.o.Summary),
				Parameters:  params,
				RequestBody: body,
				Responses:   responses,
			})
		}
	}

	return server, nil
}
