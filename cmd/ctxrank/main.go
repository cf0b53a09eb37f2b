package main

import "ctxrank/internal/cli"

func main() {
	cli.Execute()
}
