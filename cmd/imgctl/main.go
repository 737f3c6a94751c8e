package main

import (
	"fmt"
	"os"

	"github.com/ds124wfegd/imgsqueeze/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imgctl:", err)
		os.Exit(1)
	}
}
