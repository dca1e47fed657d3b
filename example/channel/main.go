package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/tempflow"
)

func main() {
	flow, err := tempflow.ConfFromConfig(tempflow.DefaultConfig())
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := tempflow.NewChannelSink("fanout", 32)
	defer closeBatches()

	go forwardWorker("ingest", batches)

	if _, err := flow.Run(ctx, nil, tempflow.StreamOutSink(sink)); err != nil {
		log.Fatalf("subscriber error: %v", err)
	}
}

func forwardWorker(name string, batches <-chan []tempflow.Record) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d records at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
