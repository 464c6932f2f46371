package main

import "github.com/LumeraProtocol/weave/weavenode/cmd"

func main() {
	cmd.Execute()
}
