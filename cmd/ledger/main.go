package main

import "finance-ledger/cmd/ledger/cmd"

func main() {
	cmd.Execute()
}
