package main

import "pol/cmd"

func main() {
	cmd.Execute()
}
