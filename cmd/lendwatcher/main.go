package main

import (
	"lending-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
