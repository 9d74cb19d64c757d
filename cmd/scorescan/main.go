package main

import "scorescan/internal/cmd"

func main() {
	cmd.Execute()
}
