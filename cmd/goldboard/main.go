package main

import "goldboard/internal/cli"

func main() {
	cli.Execute()
}
