// Command chordctl talks to a running ring from the outside: store and
// fetch values, resolve key ownership, and inspect node state.
//
// Usage:
//
//	chordctl -node 127.0.0.1:7000 put <key> <value>
//	chordctl -node 127.0.0.1:7000 get <key>
//	chordctl -node 127.0.0.1:7000 lookup <key>
//	chordctl -node 127.0.0.1:7000 info
//	chordctl -node 127.0.0.1:7000 ping
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/internal/transport"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

func main() {
	node := flag.String("node", "127.0.0.1:7000", "Ring member to contact (host:port)")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	cfg.RPCTimeout = *timeout

	logger, err := pkg.NewLogger(&pkg.LoggerConfig{Level: "error", Format: "console", Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	client := transport.NewClient(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			fatal("usage: put <key> <value>")
		}
		hint, err := client.Put(ctx, *node, args[1], []byte(args[2]), 0)
		for retries := 0; errors.Is(err, pkg.ErrNotOwner) && hint != nil && retries < 4; retries++ {
			hint, err = client.Put(ctx, hint.Address(), args[1], []byte(args[2]), 0)
		}
		if err != nil {
			fatal("put failed: %v", err)
		}
		fmt.Println("stored")

	case "get":
		if len(args) != 2 {
			fatal("usage: get <key>")
		}
		value, found, hint, err := client.Get(ctx, *node, args[1], 0)
		for retries := 0; errors.Is(err, pkg.ErrNotOwner) && hint != nil && retries < 4; retries++ {
			value, found, hint, err = client.Get(ctx, hint.Address(), args[1], 0)
		}
		if err != nil {
			fatal("get failed: %v", err)
		}
		if !found {
			fatal("key not found")
		}
		fmt.Printf("%s\n", value)

	case "lookup":
		if len(args) != 2 {
			fatal("usage: lookup <key>")
		}
		keyID := ring.HashString(args[1])
		owner, hops, err := client.FindSuccessor(ctx, *node, keyID, 0)
		if err != nil {
			fatal("lookup failed: %v", err)
		}
		fmt.Printf("key id:  %s\n", keyID.Text(16))
		fmt.Printf("owner:   %s\n", owner.Address())
		fmt.Printf("node id: %s\n", owner.ID.Text(16))
		fmt.Printf("hops:    %d\n", hops)

	case "info":
		info, err := client.Info(ctx, *node)
		if err != nil {
			fatal("info failed: %v", err)
		}
		fmt.Printf("node:        %s\n", info.Node)
		fmt.Printf("predecessor: %s\n", info.Predecessor)
		fmt.Printf("successor:   %s\n", info.Successor)
		fmt.Printf("keys:        %d\n", info.KeyCount)

	case "ping":
		start := time.Now()
		if err := client.Ping(ctx, *node); err != nil {
			fatal("ping failed: %v", err)
		}
		fmt.Printf("ok (%s)\n", time.Since(start).Round(time.Microsecond))

	default:
		fatal("unknown command %q", args[0])
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
