// anvil is the schema-driven asset pipeline CLI.
package main

import (
	"os"

	"github.com/anvilengine/anvil/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
