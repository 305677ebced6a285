package main

import "github.com/frahmantamala/production-management/cmd"

func main() {
	cmd.Execute()
}
