package main

import "github.com/velide/middleware-setup/cmd/velide-applier/cmd"

func main() {
	cmd.Execute()
}
