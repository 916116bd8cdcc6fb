package main

import "github.com/mcoot/mclink/internal/cli"

func main() {
	cli.Execute()
}
