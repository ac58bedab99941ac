package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/signoff/internal/ctl"
	"github.com/dmitrijs2005/signoff/internal/server/config"
)

func main() {
	cfg := config.LoadEnvConfig()
	root := ctl.NewRootCommand(ctl.OpenDeployment(cfg))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
