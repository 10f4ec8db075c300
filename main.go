package main

import "messenger-sync/cmd"

func main() {
	cmd.Execute()
}
