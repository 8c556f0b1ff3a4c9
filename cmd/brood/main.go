package main

import "github.com/agusx1211/brood/internal/cli"

func main() {
	cli.Execute()
}
