package main

import "mediaorc/internal/ctlcli"

func main() {
	ctlcli.Execute()
}
