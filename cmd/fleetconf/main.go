package main

import "github.com/fleetconf-project/fleetconf/internal/cli"

func main() {
	cli.Execute()
}
