package main

import "avular-robenv/internal/cli"

func main() {
	cli.Execute()
}
