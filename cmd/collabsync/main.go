package main

import "collaboraid-sync/internal/cli"

func main() {
	cli.Execute()
}
