package main

import "github.com/OpenTraceLab/OpenTraceGMSL/cmd/gmsl/cmd"

func main() {
	cmd.Execute()
}
