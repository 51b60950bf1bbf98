// Command transcript-viewer shows live call transcripts. It consumes the
// transcript topics from Kafka and pushes them to browsers over a websocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"voice-intake-bridge/internal/models"
	"voice-intake-bridge/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) error {
	// Partition reader without a consumer group, so several viewers see every event.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Cannot rewind, reading from the current offset")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming transcript topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		var event models.TranscriptEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Undecodable transcript event")
			continue
		}

		log.Debug().
			Str("eventType", event.EventType).
			Str("callId", event.CallID).
			Str("role", event.Role).
			Str("text", truncate(event.Text, 40)).
			Msg("Received transcript event")
		hub.publish(event)
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "call.transcript.partial", "Partial transcript topic")
	topicFinal := flag.String("topic-final", "call.transcript.final", "Final transcript topic")
	since := flag.Duration("since", time.Hour, "How far back to replay on start")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run(ctx.Done())

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Embedded assets missing")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", wsHandler(hub))
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	server := &http.Server{Addr: ":" + *port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	brokerList := strings.Split(*brokers, ",")

	log.Info().
		Str("url", "http://localhost:"+*port).
		Strs("brokers", brokerList).
		Strs("topics", []string{*topicPartial, *topicFinal}).
		Msg("Transcript viewer starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicPartial, *since) })
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicFinal, *since) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Transcript viewer stopped")
	}
}
