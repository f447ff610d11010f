package main

import "github.com/plugkit/plugkit/pkg/cmd"

func main() {
	cmd.Execute()
}
