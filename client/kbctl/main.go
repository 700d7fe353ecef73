package main

import "github.com/Farx1/esilvchatbot/client/kbctl/cmd"

func main() {
	cmd.Execute()
}
