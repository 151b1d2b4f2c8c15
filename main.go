package main

import "github.com/theirongolddev/oburn/cmd"

func main() {
	cmd.Execute()
}
