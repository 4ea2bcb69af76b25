package main

import "github.com/serdeslab/linksim/linksim/cmd"

func main() {
	cmd.Execute()
}
