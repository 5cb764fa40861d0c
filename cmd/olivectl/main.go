// Command olivectl runs operator tasks against the olive-agenda database.
package main

import (
	"os"
)

func main() {
	os.Exit(execute())
}
