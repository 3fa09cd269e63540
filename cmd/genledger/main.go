package main

import "github.com/vietddude/genledger/internal/cli"

func main() {
	cli.Execute()
}
