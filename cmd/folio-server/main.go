package main

import "github.com/permitdesk/folio/cmd/folio-server/cmd"

func main() {
	cmd.Execute()
}
