package main

import (
	"fmt"
	"os"

	"github.com/mwantia/docvault/cmd/docvault/cli"
	"github.com/mwantia/docvault/cmd/docvault/cli/client"
	"github.com/mwantia/docvault/cmd/docvault/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	info := cli.VersionInfo{
		Version: version,
		Commit:  commit,
	}
	root := cli.NewRootCommand(info)

	root.AddCommand(cli.NewVersionCommand(info))

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())

	root.AddCommand(client.NewDocsCommand())
	root.AddCommand(client.NewTagsCommand())
	root.AddCommand(client.NewStorageCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
