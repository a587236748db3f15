package main

import "github.com/pgretain/pgretain/cmd/pgretain/cmd"

func main() {
	cmd.Execute()
}
