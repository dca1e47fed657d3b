// Command basic runs a publisher and a subscriber in one process over the
// in-memory bus.
package main

import (
	"context"
	"log"
	"time"

	"github.com/ghalamif/tempflow"
)

func main() {
	bus := tempflow.NewMemoryBus(0)
	defer bus.Close()

	cfg := tempflow.DefaultConfig()
	cfg.Transport = "memory"
	cfg.Policy.TargetSamples = 5
	cfg.Policy.PublishPeriod = 200 * time.Millisecond
	cfg.Log.Verbosity = 2

	ctx := context.Background()
	sub, err := tempflow.NewSubscriber(ctx, cfg, tempflow.WithMemoryBus(bus))
	if err != nil {
		log.Fatalf("create subscriber: %v", err)
	}
	pub, err := tempflow.NewPublisher(cfg, tempflow.WithMemoryBus(bus))
	if err != nil {
		log.Fatalf("create publisher: %v", err)
	}

	go func() {
		if _, err := pub.Run(ctx, nil); err != nil {
			log.Printf("publisher: %v", err)
		}
	}()

	stats, err := sub.Run(ctx, nil)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	log.Printf("received %d samples in %d cycles", stats.Samples, stats.Cycles)
}
