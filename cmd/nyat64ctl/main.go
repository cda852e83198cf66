// nyat64ctl -- CLI client for the nyat64 daemon's debug HTTP surface.
package main

import "github.com/nyantec/nyat64/cmd/nyat64ctl/commands"

func main() {
	commands.Execute()
}
