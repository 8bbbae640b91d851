package main

import "github.com/nextlevelbuilder/jobscout/cmd"

func main() {
	cmd.Execute()
}
