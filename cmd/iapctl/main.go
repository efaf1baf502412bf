package main

import "github.com/code-payments/flipchat-iapkit/cmd"

func main() {
	cmd.Execute()
}
