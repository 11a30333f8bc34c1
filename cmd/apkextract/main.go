package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/blackwell-systems/apkextract/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if strings.Contains(err.Error(), "unknown command") {
			fmt.Fprintln(os.Stderr, "Run 'apkextract --help' for a list of commands.")
		}
		os.Exit(1)
	}
}
