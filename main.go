package main

import (
	"os"

	"github.com/user/gosec-audit/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
