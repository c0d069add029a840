// Command trcvet reports trcsock scopes which can never be ended.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/peterbourgon/trcsock/trcvet"
)

func main() {
	singlechecker.Main(trcvet.Analyzer)
}
