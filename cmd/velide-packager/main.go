package main

import "github.com/velide/middleware-setup/cmd/velide-packager/cmd"

func main() {
	cmd.Execute()
}
