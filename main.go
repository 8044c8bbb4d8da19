package main

import "github.com/sambabib/nuget-audit/cmd"

func main() {
	cmd.Execute()
}
