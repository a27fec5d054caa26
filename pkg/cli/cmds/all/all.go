// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/openbci.go/pkg/cli/cmds/board"
)
