package main

import (
	"fmt"
	"os"

	"github.com/example/aal-logistics/api-go/internal/cli"
	"github.com/example/aal-logistics/api-go/internal/config"
)

func main() {
	config.LoadDotEnv()
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
