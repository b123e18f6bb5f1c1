package main

import "ptstream/cmd/ptstream-cli/cmd"

func main() {
	cmd.Execute()
}
