package main

import "github.com/ValentinKolb/voltc/cmd"

func main() {
	cmd.Execute()
}
