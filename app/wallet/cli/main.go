package main

import "github.com/chaos0211/block-dt/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
