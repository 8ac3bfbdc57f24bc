// Command kwscout qualifies SEO keywords by how many pages compete for them
// in titles.
package main

import (
	"os"

	"github.com/FranksOps/kwscout/cmd/kwscout/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
