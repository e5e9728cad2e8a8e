package main

import "github.com/tidelark/tidelark/cmd"

func main() {
	cmd.Execute()
}
