// Command npmmirror mirrors npm packages reachable from a tree of manifest
// files into a local or S3-backed output tree, following the three-phase
// orchestration in npm/mirror. Wiring follows depot's cmd/depot/main.go:
// kong.Parse into a CLI struct, ctx.Run(&cli.Globals), ctx.FatalIfErrorf.
package main

import (
	"github.com/a-h/npmmirror/cli"
	"github.com/alecthomas/kong"
)

func main() {
	c := cli.CLI{}

	ctx := kong.Parse(&c,
		kong.Name("npmmirror"),
		kong.Description("Mirror npm packages referenced by a tree of manifest files"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&c.Globals)
	ctx.FatalIfErrorf(err)
}
