package main

import "svfe-monitor/internal/cli"

func main() {
	cli.Execute()
}
