package main

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/lenin/cmd/lenin/cmds"
)

func main() {
	err := cmds.NewRootCommand().Execute()
	cobra.CheckErr(err)
}
