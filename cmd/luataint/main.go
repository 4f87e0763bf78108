// Package main implements the luataint CLI.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/l3aro/luataint/cmd/luataint/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`luataint version {{.Version}}
`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.RootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, commands.ErrVulnerable) {
			os.Stderr.WriteString("Error: " + err.Error() + "\n")
		}
		stop()
		os.Exit(1)
	}
}
