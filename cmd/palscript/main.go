package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/zurustar/palscript/pkg/app"
)

func main() {
	application := app.New(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
