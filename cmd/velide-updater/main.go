package main

import "github.com/velide/middleware-setup/cmd/velide-updater/cmd"

func main() {
	cmd.Execute()
}
