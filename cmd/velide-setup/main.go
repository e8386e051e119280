package main

import "github.com/velide/middleware-setup/cmd/velide-setup/cmd"

func main() {
	cmd.Execute()
}
