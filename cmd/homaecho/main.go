package main

import "github.com/skycoin/homatransport/cmd/homaecho/commands"

func main() {
	commands.Execute()
}
