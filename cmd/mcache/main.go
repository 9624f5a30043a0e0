package main

import "github.com/drgatoxd/mongo-cache/internal/cli"

func main() {
	cli.Execute()
}
