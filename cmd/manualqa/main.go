package main

import "github.com/dgallion1/manualqa/internal/cli"

func main() {
	cli.Execute()
}
