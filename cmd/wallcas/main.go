package main

import "github.com/aweris/wallcas/cmd/wallcas/cmd"

func main() {
	cmd.Execute()
}
