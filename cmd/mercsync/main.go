package main

import (
	"context"

	"github.com/rewired-gh/mercsync/cmd/mercsync/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
