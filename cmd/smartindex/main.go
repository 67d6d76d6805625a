package main

import "smartindex/internal/cli"

func main() {
	cli.Execute()
}
