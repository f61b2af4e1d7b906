package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cloudwarden/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.Options{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
