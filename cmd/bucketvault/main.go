package main

import "github.com/jmcleod/bucketvault/cmd/bucketvault/cmd"

func main() {
	cmd.Execute()
}
