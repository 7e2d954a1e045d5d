package main

import "github.com/shahabnazari/litpipe/internal/cli"

func main() {
	cli.Execute()
}
