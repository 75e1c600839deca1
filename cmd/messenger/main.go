package main

import "github.com/omochice/taskflow-chat/internal/cli"

func main() {
	cli.Execute()
}
