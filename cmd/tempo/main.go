// Command tempo schedules dependency-ordered work items and tracks whether
// anchored knowledge entries are still fresh.
package main

import "github.com/papapumpkin/tempo/cmd"

func main() {
	cmd.Execute()
}
