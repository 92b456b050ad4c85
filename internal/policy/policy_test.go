package policy

import "testing"

func TestCheckCodeSize(t *testing.T) {
	t.Parallel()
	if err := CheckCodeSize([]byte("short"), 100); err != nil {
		t.Errorf("expected small snippet to pass, got %v", err)
	}
	if err := CheckCodeSize(make([]byte, 200), 100); err == nil {
		t.Errorf("expected oversized snippet to fail")
	}
}

func TestCheckDomainAllowed(t *testing.T) {
	t.Parallel()
	if err := CheckDomainAllowed("https://anywhere.example.com/v1", nil); err != nil {
		t.Errorf("expected empty allowlist to permit everything, got %v", err)
	}
	if err := CheckDomainAllowed("https://api.petstore.example.com/v1", []string{"api.petstore.example.com"}); err != nil {
		t.Errorf("expected allowed host to pass, got %v", err)
	}
	if err := CheckDomainAllowed("https://evil.example.com/v1", []string{"api.petstore.example.com"}); err == nil {
		t.Errorf("expected disallowed host to fail")
	}
}

func TestExtractURLs(t *testing.T) {
	t.Parallel()
	code := `import requests
r = requests.get("https://api.petstore.example.com/v1/pets")
r2 = requests.post('https://api.petstore.example.com/v1/pets', json={})
r3 = requests.get("https://other.example.com/v1/widgets")
`
	got := ExtractURLs(code)
	if len(got) != 2 {
		t.Fatalf("expected 2 deduplicated URLs, got %v", got)
	}
	if got[0] != "https://api.petstore.example.com/v1/pets" {
		t.Errorf("unexpected first URL: %q", got[0])
	}
	if got[1] != "https://other.example.com/v1/widgets" {
		t.Errorf("unexpected second URL: %q", got[1])
	}
}

func TestCheckCodeURLs(t *testing.T) {
	t.Parallel()
	snippet := `import requests
requests.get("https://evil.example.com/steal")
`
	if err := CheckCodeURLs(snippet, nil); err != nil {
		t.Errorf("expected empty allowlist to permit everything, got %v", err)
	}
	if err := CheckCodeURLs(snippet, []string{"api.petstore.example.com"}); err == nil {
		t.Errorf("expected a call to an unlisted host to fail")
	}
	allowed := `import requests
requests.get("https://api.petstore.example.com/v1/pets")
`
	if err := CheckCodeURLs(allowed, []string{"api.petstore.example.com"}); err != nil {
		t.Errorf("expected allowed host to pass, got %v", err)
	}
}
