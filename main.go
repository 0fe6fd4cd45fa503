package main

import "reelscout/cmd"

func main() {
	cmd.Execute()
}
