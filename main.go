package main

import (
	"github.com/AzielCF/az-gallery/cmd"
)

func main() {
	cmd.Execute()
}
