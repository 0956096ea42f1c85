// The main package for the ccaindex executable.
package main

import (
	"os"

	"github.com/JakeFAU/cca-esindex/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
