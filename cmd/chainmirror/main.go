package main

import (
	"github.com/chainmirror/chainmirror/cmd"
)

func main() {
	cmd.Execute()
}
