// Command voicechat talks to a kaskada server from the terminal.
//
// Usage:
//
//	voicechat [flags] <command> [args]
//
// Commands:
//
//	stream         - send a recording and play back the streamed reply
//	conversations  - list or create conversations
//	token          - mint a bearer token for a server secret
package main

import (
	"fmt"
	"os"

	"github.com/lukasbauer/kaskada/cmd/voicechat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
