package main

import "github.com/promoxa/community-client/cmd/chat/cmd"

func main() {
	cmd.Execute()
}
