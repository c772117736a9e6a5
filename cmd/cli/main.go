package main

import "mobius/cmd/cli/command"

func main() {
	command.Execute()
}
