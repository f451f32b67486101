package main

import "staff-registry/cmd/registryctl/cmd"

func main() {
	cmd.Execute()
}
