package main

import (
	"github.com/robotalks/openbci.go/pkg/bci/env"
	"github.com/robotalks/openbci.go/pkg/cli/sh"

	_ "github.com/robotalks/openbci.go/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
