package main

import (
	"os"

	"upnext/cmd/upnext/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
