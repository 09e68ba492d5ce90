package main

import "github.com/slushlabs/snowledger/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
