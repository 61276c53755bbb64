// ./main.go
package main

import (
	"github.com/xkilldash9x/inbox-sweeper/cmd"
)

// main is the entry point for the sweeper CLI.
func main() {
	cmd.Execute()
}
