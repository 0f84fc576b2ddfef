package main

import "profmerge/cmd/cli"

func main() {
	cli.RunCLI()
}
