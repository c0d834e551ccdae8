package main

import "vid2doc/cmd"

func main() {
	cmd.Execute()
}
