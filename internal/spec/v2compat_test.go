package spec

import (
	"context"
	"strings"
	"testing"
)

func TestV2Compat_MultipleBodyMerged(t *testing.T) {
	t.Parallel()
	// A "create pet" operation with two body params (invalid v2) should
	// merge into a single body schema that BuildServerSpec can still
	// turn into one request body.
	in := []byte(`swagger: "2.0"
info: { title: petstore, version: "1.0.0" }
paths:
  /pets:
    post:
      operationId: createPet
      parameters:
      - in: body
        name: name
        required: true
        schema: { type: string }
      - in: body
        name: tag
        schema: { type: string }
      responses: { '200': { description: ok } }
`)
	out, changed, err := preprocessV2ForCompatibility(in)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	s := string(out)
	if !strings.Contains(s, "in: body") || !strings.Contains(s, "name: body") {
		t.Fatalf("expected merged single body parameter, got:\n%s", s)
	}

	v3doc, err := convertV2ToV3(out)
	if err != nil {
		t.Fatalf("convert v2->v3: %v", err)
	}
	ctx := context.Background()
	server, err := BuildServerSpec(ctx, v3doc, SwaggerSource{Name: "petstore", BaseURL: "https://api.petstore.example.com"}, out)
	if err != nil {
		t.Fatalf("build server spec: %v", err)
	}
	if len(server.Endpoints) != 1 || server.Endpoints[0].RequestBody == nil {
		t.Fatalf("expected createPet to retain a merged request body, got %+v", server.Endpoints)
	}
}

func TestV2Compat_BodyAndFormData_ToFormData(t *testing.T) {
	t.Parallel()
	// Mixing body + formData (a pet photo upload) should convert body to
	// formData and add consumes multipart.
	in := []byte(`swagger: "2.0"
info: { title: petstore, version: "1.0.0" }
paths:
  /pets/{id}/photo:
    post:
      operationId: uploadPetPhoto
      parameters:
      - in: body
        name: caption
        schema: { type: string }
      - in: formData
        name: file
        type: file
        required: true
      responses: { '200': { description: ok } }
`)
	out, changed, err := preprocessV2ForCompatibility(in)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	s := string(out)
	if strings.Contains(s, "\n      - in: body\n") {
		t.Fatalf("expected no body params after conversion to formData, got:\n%s", s)
	}
	if !strings.Contains(s, "multipart/form-data") {
		t.Fatalf("expected consumes multipart/form-data, got:\n%s", s)
	}
}
