package main

import "github.com/ByLCY/textfit/cli"

func main() {
	cli.Execute()
}
