package main

import (
	"os"

	"github.com/agent462/sshdoctor/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
