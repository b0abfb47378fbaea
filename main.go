package main

import "github.com/Zerofisher/chargelog/cmd"

func main() {
	cmd.Execute()
}
