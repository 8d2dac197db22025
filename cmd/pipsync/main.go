package main

import (
	"os"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
