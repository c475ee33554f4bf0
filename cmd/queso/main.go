package main

import "github.com/hitoshi/queso/internal/devcli"

func main() {
	devcli.Execute()
}
