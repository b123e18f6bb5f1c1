package main

import "ptstream/cmd/ptstreamd/cmd"

func main() {
	cmd.Execute()
}
