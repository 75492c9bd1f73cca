package main

import (
	"fmt"
	"io"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/sync"
)

func directionArrow(direction sync.Direction) string {
	switch direction {
	case sync.DirectionUp:
		return "→"
	case sync.DirectionDown:
		return "←"
	default:
		return "⇄"
	}
}

func printConfigSummary(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Config Path: %s\n", green(cfg.Path))
	fmt.Fprintf(out, "Bucket:      %s\n", cyan(cfg.Remote.Bucket))
	if cfg.Remote.Region != "" {
		fmt.Fprintf(out, "Region:      %s\n", cyan(cfg.Remote.Region))
	}
	if cfg.Remote.Endpoint != "" {
		fmt.Fprintf(out, "Endpoint:    %s\n", cyan(cfg.Remote.Endpoint))
	}
	fmt.Fprintf(out, "Strategy:    %s\n", cyan(string(cfg.Strategy)))
}
