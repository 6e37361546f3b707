// peer is the hybrid node: it listens for inbound connections and dials
// out to other peers over the same wire format, holding one registry for
// both directions. The operator drives it from stdin with local commands
// (/connect, /send, /broadcast, /disconnect, /list, /peers, /quit);
// anything else is broadcast as chat.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	parley "github.com/ironfang-ltd/go-parley"
)

const operatorHelp = `Local commands:
/connect <host> <port>     dial a peer
/disconnect <host:port>    close a connection
/send <host:port> <text>   send to one peer
/broadcast <text>          send to all peers
/list                      list connections
/peers                     list connections with callback ports
/quit                      exit
Anything else is broadcast as chat.`

func main() {
	name := flag.String("name", "", "peer display name (required)")
	listen := flag.String("listen", "0.0.0.0:0", "listen address")
	admin := flag.String("admin", "", "admin HTTP address (empty disables)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: peer -name <name> [-listen <addr>]")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	parley.InitLogger(level)

	opts := []parley.Option{
		parley.WithListenAddr(*listen),
		parley.WithFrameHandler(func(from *parley.Member, payload string) {
			if from != nil {
				fmt.Printf("[%s] %s\n", from.Name, payload)
				return
			}
			fmt.Println(payload)
		}),
	}
	if *admin != "" {
		opts = append(opts, parley.WithAdminAddr(*admin))
	}

	node, err := parley.NewNode(*name, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	node.Start()
	defer node.Stop()
	fmt.Printf("%s listening on %s\n%s\n", node.Name(), node.Addr(), operatorHelp)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			n := node.BroadcastText(line)
			fmt.Printf("broadcast to %d peer(s)\n", n)
			continue
		}
		if quit := operatorCommand(node, line); quit {
			return
		}
	}
}

// operatorCommand executes one local slash-command. Returns true on /quit.
func operatorCommand(node *parley.Node, line string) bool {
	fields := strings.Fields(line)

	switch fields[0] {
	case "/quit":
		return true

	case "/connect":
		if len(fields) != 3 {
			fmt.Println("usage: /connect <host> <port>")
			return false
		}
		port, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Println("invalid port:", fields[2])
			return false
		}
		m, err := node.Connect(fields[1], port)
		if err != nil {
			fmt.Println("connect failed:", err)
			return false
		}
		fmt.Println("connected to", m.Key)

	case "/disconnect":
		if len(fields) != 2 {
			fmt.Println("usage: /disconnect <host:port>")
			return false
		}
		if err := node.Disconnect(fields[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Println("disconnected", fields[1])

	case "/send":
		if len(fields) < 3 {
			fmt.Println("usage: /send <host:port> <text>")
			return false
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, fields[0]), " "+fields[1]))
		if err := node.SendTo(fields[1], text); err != nil {
			fmt.Println("send failed:", err)
		}

	case "/broadcast":
		text := strings.TrimSpace(strings.TrimPrefix(line, "/broadcast"))
		if text == "" {
			fmt.Println("usage: /broadcast <text>")
			return false
		}
		n := node.BroadcastText(text)
		fmt.Printf("broadcast to %d peer(s)\n", n)

	case "/list":
		snap := node.Registry().Snapshot()
		if len(snap) == 0 {
			fmt.Println("no connections")
			return false
		}
		for _, m := range snap {
			dir := "in"
			if m.Outbound {
				dir = "out"
			}
			fmt.Printf("%s  %s  (%s)\n", m.Name, m.Key, dir)
		}

	case "/peers":
		snap := node.Registry().Snapshot()
		if len(snap) == 0 {
			fmt.Println("no peers connected")
			return false
		}
		for _, m := range snap {
			fmt.Printf("%s (%s:%d)\n", m.Name, m.Host(), m.PeerPort)
		}

	default:
		fmt.Println("unknown command; known:", "/connect /disconnect /send /broadcast /list /peers /quit")
	}
	return false
}
