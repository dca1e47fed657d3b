package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/tempflow/pkg/tempflow"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a tempflow YAML config (defaults to a local NATS server)")
	flag.Parse()

	cfg := tempflow.DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = tempflow.LoadConfig(*cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	flow, err := tempflow.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	callback := func(batch []tempflow.Record) error {
		for _, rec := range batch {
			fmt.Printf("%s writer=%s seq=%d payload=%s\n",
				rec.ReceivedAt.Format(time.RFC3339Nano),
				rec.WriterID,
				rec.Seq,
				rec.Payload,
			)
		}
		return nil
	}

	stats, err := flow.Run(ctx, nil, tempflow.StreamOutCallback("stdout", callback))
	if err != nil {
		log.Fatalf("subscriber error: %v", err)
	}
	log.Printf("stopped after %d samples (%s)", stats.Samples, stats.Reason)
}
