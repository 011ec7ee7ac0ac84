package main

import "github.com/dayuer/tubebot/cmd"

func main() {
	cmd.Execute()
}
