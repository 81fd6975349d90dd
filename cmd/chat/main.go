// Package main starts the chat routing service and handles termination.
//
// The process is a gateway around channel routing and message logging; player
// identity stays with the issuer of the gateway tokens.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	chatcmd "github.com/riftwild/chat/internal/cmd/chat"
)

func main() {
	cfg, err := chatcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CHAT] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chatcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
