package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/easysave/easysave/pkg/easysave"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := easysave.Main(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
