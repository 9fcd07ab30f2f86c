package main

import "github.com/paperwall-labs/paperwall-node/internal/cmd"

func main() {
	cmd.Execute()
}
