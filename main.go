package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spaceportal/spaceportal/cmd"
	"github.com/spaceportal/spaceportal/internal/buildinfo"
)

// Set through -ldflags at build time.
var (
	version   string
	buildDate string
)

func main() {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}

	rootCmd := cmd.RootCommand(build)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
