// Command mfp compiles OpenAPI/Swagger documents into a callable
// Python function library and serves it to an LLM client over MCP's
// four meta-tools.
package main

import (
	"fmt"
	"os"

	"github.com/mfp-dev/mfp/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.ExitCode(err))
}
