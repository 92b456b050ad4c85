// Package vault is the only component permitted to read credential
// material from the process environment. Everything downstream of it
// (codegen, the executor, the sandbox) sees already-resolved header
// values or nothing at all.
package vault

import (
	"os"
	"regexp"
	"strings"

	"github.com/mfp-dev/mfp/internal/codegen"
	"github.com/mfp-dev/mfp/internal/errs"
)

var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand substitutes every ${VAR} occurrence in value with the
// corresponding environment variable. An unset variable expands to the
// empty string rather than failing the whole header, since an unset
// auth var most often means "this server isn't configured" rather than
// a typo worth halting compilation over.
func Expand(value string) string {
	return varRe.ReplaceAllStringFunc(value, func(m string) string {
		name := varRe.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

// BuildServerEnv returns the environment variables MFP injects into a
// sandbox run on behalf of one server: MFP_<NAME>_BASE_URL always, and
// MFP_<NAME>_AUTH only when the source declared an auth_header and its
// referenced variable resolved to a non-empty value. These are the same
// two variable names the generated library itself reads at call time.
func BuildServerEnv(serverName, baseURL, authHeaderTemplate string) map[string]string {
	name := codegen.EnvName(serverName)
	env := map[string]string{
		"MFP_" + name + "_BASE_URL": baseURL,
	}
	if strings.TrimSpace(authHeaderTemplate) == "" {
		return env
	}
	for _, m := range varRe.FindAllStringSubmatch(authHeaderTemplate, -1) {
		if os.Getenv(m[1]) == "" {
			return env
		}
	}
	value := Expand(authHeaderTemplate)
	if value == "" {
		return env
	}
	env["MFP_"+name+"_AUTH"] = value
	return env
}

// RequireAllResolved reports a ConfigError when a server configured
// with an auth_header references a ${VAR} that is unset or empty.
// Compilation itself never fails on this; execution-time wiring is
// where a missing credential actually matters.
func RequireAllResolved(serverName, authHeaderTemplate string) error {
	if strings.TrimSpace(authHeaderTemplate) == "" {
		return nil
	}
	for _, m := range varRe.FindAllStringSubmatch(authHeaderTemplate, -1) {
		if os.Getenv(m[1]) == "" {
			return errs.New(errs.ConfigError, "vault: server %q declares auth_header but its referenced variable is unset", serverName)
		}
	}
	return nil
}
