package main

import "github.com/permitdesk/folio/cmd/folio-admin/cmd"

func main() {
	cmd.Execute()
}
