// Package main implements the masq command line tool.
package main

import (
	"fmt"
	"os"

	"go.dedis.ch/masq/cli"
)

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.NewApp(os.Stdout)

	return app.Run(args)
}
