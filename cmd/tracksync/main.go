package main

import (
	"github.com/OneClickTag/tracksync/internal/cli"
)

func main() {
	cli.Execute()
}
