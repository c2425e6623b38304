package main

import "github.com/FranksOps/vigil/cmd"

func main() {
	cmd.Execute()
}
