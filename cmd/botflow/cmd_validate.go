package main

import (
	"fmt"
	"os"

	"github.com/openbotkit/botflow/pkg/config"
	"github.com/openbotkit/botflow/pkg/graph"
)

// validateCmd parses the bot model without starting any channel, so modelers
// can check a file before deploying it.
func validateCmd() {
	path := ""
	if len(os.Args) > 2 {
		path = os.Args[2]
	} else {
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		path = cfg.BotModelPath
	}

	g, botName, err := graph.LoadFile(path)
	if err != nil {
		fmt.Printf("Invalid bot model %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("Bot model OK: %s\n", path)
	fmt.Printf("  Bot:   %s\n", botName)
	fmt.Printf("  Nodes: %d\n", g.Len())
	if _, ok := g.Root(graph.RootDefault); ok {
		fmt.Println("  Default root: present")
	} else {
		fmt.Println("  Default root: missing (messages with unknown intents cannot be answered)")
	}
}
