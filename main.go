// Package main provides the entry point for the RCON bridge application.
package main

import "github.com/rcon-bridge/rcon-ws-bridge/cmd"

func main() {
	cmd.Execute()
}
