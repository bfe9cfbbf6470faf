package main

import "github.com/darmiel/kartei/cmd"

func main() {
	cmd.Execute()
}
