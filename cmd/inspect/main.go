// Command inspect dumps ledger contents for offline debugging. It opens the
// store directly, so the client must not be running against the same path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"peerchat/pkg/ledger"
	"peerchat/pkg/logger"
)

func main() {
	var path string
	var chat string
	var since int64
	var limit int
	flag.StringVar(&path, "path", "", "ledger store path (required)")
	flag.StringVar(&chat, "chat", "", "dump messages for this chat id; empty lists chats")
	flag.Int64Var(&since, "since", 0, "list messages after this local id")
	flag.IntVar(&limit, "limit", 100, "max messages to dump")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}

	logger.Init()
	if err := ledger.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if chat == "" {
		chats, err := ledger.ListChats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "list chats: %v\n", err)
			os.Exit(1)
		}
		for _, c := range chats {
			last, _ := ledger.LastLocalID(c)
			read, _ := ledger.ReadMarker(c)
			fmt.Printf("%s\tlast=%d read=%d\n", c, last, read)
		}
		return
	}

	msgs, err := ledger.ListSince(chat, since, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list messages: %v\n", err)
		os.Exit(1)
	}
	for _, m := range msgs {
		_ = enc.Encode(m)
	}
}
