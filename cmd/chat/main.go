// chat is the terminal client. It dials a server, introduces itself with
// the chosen username, prints everything the server sends, and relays
// stdin lines (chat text or /commands) to the server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	parley "github.com/ironfang-ltd/go-parley"
)

func main() {
	username := flag.String("user", "", "username to declare (required)")
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 8000, "server port")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -user <name> [-host <host>] [-port <port>]")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	parley.InitLogger(level)

	// No listen address: the node is outbound-only, so it introduces
	// itself with USERNAME. Received frames go straight to the terminal
	// instead of the dispatch engine.
	node, err := parley.NewNode(*username,
		parley.WithFrameHandler(func(_ *parley.Member, payload string) {
			fmt.Println(render(payload))
		}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	node.Start()
	defer node.Stop()

	member, err := node.Connect(*host, *port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := node.SendTo(member.Key, line); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
			return
		}
		if line == "/quit" {
			return
		}
	}
}

// render converts a decorated chat frame into an ANSI-colored line. The
// [COLOR:<code>] prefix is a rendering hint, not user text; frames
// without one print unchanged.
func render(payload string) string {
	if !strings.HasPrefix(payload, "[COLOR:") {
		return payload
	}
	end := strings.Index(payload, "]")
	if end < 0 {
		return payload
	}
	code := payload[len("[COLOR:"):end]
	rest := payload[end+1:]
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, rest)
}
