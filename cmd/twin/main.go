// twin is the Twin Messenger terminal client and development remote store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ashureev/twinsync/internal/commands"
)

func main() {
	if err := commands.New().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "twin:", err)
		os.Exit(1)
	}
}
