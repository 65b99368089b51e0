package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/mmo-level/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "EVENTS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Event sources filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 = until Ctrl+C)")
	)
	flag.Parse()

	switch *command {
	case "tail":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := tailEvents(ctx, *natsURL, *stream, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Sources:    parseStringList(*sources),
			Limit:      *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "types":
		showTypes()

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Sources    []string
	Limit      int
}

// tailEvents выводит новые события стрима до отмены ctx или достижения лимита
func tailEvents(ctx context.Context, url, stream string, opts *TailOptions) error {
	bus, err := eventbus.NewJetStreamBus(url, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{
		Types:   opts.EventTypes,
		Sources: opts.Sources,
	}, func(ctx context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("🎬 Tailing %s on %s (limit: %d)\n", stream, url, opts.Limit)

	count := 0
	for {
		select {
		case ev := <-events:
			fmt.Println(formatEvent(ev))
			count++
			if opts.Limit > 0 && count >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", count)
				return nil
			}
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", count)
			return nil
		}
	}
}

// formatEvent печатает событие одной строкой; известные payload'ы раскрываются
func formatEvent(ev *eventbus.Envelope) string {
	head := fmt.Sprintf("[%s] %s src=%s prio=%d", ev.Timestamp.UTC().Format(timeFormat), ev.EventType, ev.Source, ev.Priority)

	switch ev.EventType {
	case eventbus.EventPositionChanged:
		var p eventbus.PositionChanged
		if err := ev.Decode(&p); err != nil {
			return head + " ⚠️ " + err.Error()
		}
		return fmt.Sprintf("%s user=%d %s (%d,%d,%d) -> (%d,%d,%d)", head, p.UserID, p.Dimension,
			p.FromBlock.X, p.FromBlock.Y, p.FromBlock.Z, p.ToBlock.X, p.ToBlock.Y, p.ToBlock.Z)

	case eventbus.EventDimensionChanged:
		var d eventbus.DimensionChanged
		if err := ev.Decode(&d); err != nil {
			return head + " ⚠️ " + err.Error()
		}
		return fmt.Sprintf("%s user=%d %s -> %s (%d,%d,%d)", head, d.UserID, d.FromDimension, d.ToDimension,
			d.Block.X, d.Block.Y, d.Block.Z)

	default:
		return fmt.Sprintf("%s %dB", head, len(ev.Payload))
	}
}

// showTypes выводит типы событий сервиса позиций
func showTypes() {
	fmt.Println("📋 Event types:")
	fmt.Printf("  %-18s смена блока внутри измерения\n", eventbus.EventPositionChanged)
	fmt.Printf("  %-18s телепортация в другое измерение\n", eventbus.EventDimensionChanged)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
