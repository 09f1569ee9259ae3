// The graph writer consumes fare quotes from Kafka and maintains a route graph
// in Neo4j: city nodes connected by FARE relationships carrying price and
// provider properties. It lags the file pipeline by design; the files remain
// the source of truth and the graph can always be rebuilt from them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	kafkago "github.com/segmentio/kafka-go"

	"farematrix/common"
	"farematrix/internal/graph"
	"farematrix/internal/kafka"
	"farematrix/internal/models"
)

type graphWriter struct {
	driver graph.DriverSessioner
}

var (
	// Counters for graph-writer throughput and failures exposed on /metrics.
	// received: messages fetched from Kafka; skipped: failure records and
	// quotes without a route; failed: Neo4j write errors.
	graphWriterQuotesReceived uint64
	graphWriterQuotesSkipped  uint64
	graphWriterQuotesFailed   uint64
	graphWriterQuotesWritten  uint64
)

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) graph.SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	quotesTopic := common.GetEnv("KAFKA_QUOTES_TOPIC", "farematrix.quotes")
	quotesGroup := common.GetEnv("KAFKA_QUOTES_GROUP", "farematrix-graph-quotes")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	driver, err := neo4j.NewDriverWithContext(neo4jURI, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	writer := &graphWriter{driver: &neo4jDriver{driver: driver}}

	quotesReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   quotesTopic,
		GroupID: quotesGroup,
	})
	defer func() {
		if err := quotesReader.Close(); err != nil {
			log.Printf("quotes reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	consumeQuotes(ctx, quotesReader, writer)
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"farematrix_graph_writer_up 1\n"+
			"farematrix_graph_writer_quotes_received_total %d\n"+
			"farematrix_graph_writer_quotes_skipped_total %d\n"+
			"farematrix_graph_writer_quotes_failed_total %d\n"+
			"farematrix_graph_writer_quotes_written_total %d\n",
		atomic.LoadUint64(&graphWriterQuotesReceived),
		atomic.LoadUint64(&graphWriterQuotesSkipped),
		atomic.LoadUint64(&graphWriterQuotesFailed),
		atomic.LoadUint64(&graphWriterQuotesWritten),
	)
	_, _ = w.Write([]byte(body))
}

func consumeQuotes(ctx context.Context, reader kafka.MessageReader, writer *graphWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("quotes fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&graphWriterQuotesReceived, 1)
		written, err := writer.writeQuote(ctx, msg.Value)
		if err != nil {
			atomic.AddUint64(&graphWriterQuotesFailed, 1)
			log.Printf("quote write error: %v", err)
			continue
		}
		if written {
			atomic.AddUint64(&graphWriterQuotesWritten, 1)
		} else {
			atomic.AddUint64(&graphWriterQuotesSkipped, 1)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("quotes commit error: %v", err)
		}
	}
}

// writeQuote merges one quote into the graph. Failure records and quotes
// missing a route are committed without a write so they are not redelivered.
func (w *graphWriter) writeQuote(ctx context.Context, payload []byte) (bool, error) {
	var quote models.FareQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return false, err
	}
	if quote.DepartureCity == "" || quote.DestinationCity == "" || quote.Failed() {
		return false, nil
	}

	query, params := buildFareQuery(quote)
	if err := w.runWrite(ctx, query, params); err != nil {
		return false, err
	}
	return true, nil
}

func (w *graphWriter) runWrite(ctx context.Context, query string, params map[string]any) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			log.Printf("neo4j session close error: %v", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// buildFareQuery merges both city nodes and one FARE relationship per
// (date, departure time, airline, provider) combination. Re-scraping the same
// fare updates price and session instead of growing a parallel edge.
func buildFareQuery(quote models.FareQuote) (string, map[string]any) {
	query := "MERGE (from:City {code: $fromCode}) " +
		"SET from.region = coalesce($fromRegion, from.region) " +
		"MERGE (to:City {code: $toCode}) " +
		"SET to.region = coalesce($toRegion, to.region) " +
		"MERGE (from)-[f:FARE {flight_date: $flight_date, departure_time: $departure_time, " +
		"airline: $airline, provider: $provider}]->(to) " +
		"SET f.price = $price, f.currency = $currency, f.num_stops = $num_stops, " +
		"f.session_id = $session_id, f.scraped_at = $scraped_at"

	params := map[string]any{
		"fromCode":       quote.DepartureCity,
		"fromRegion":     optional(quote.OriginRegion),
		"toCode":         quote.DestinationCity,
		"toRegion":       optional(quote.DestinationRegion),
		"flight_date":    quote.FlightDate,
		"departure_time": quote.DepartureTime,
		"airline":        quote.AirlineCode,
		"provider":       quote.Source,
		"price":          quote.Price,
		"currency":       quote.Currency,
		"num_stops":      quote.NumStops,
		"session_id":     quote.SessionID,
		"scraped_at":     quote.ScrapedAt,
	}
	return query, params
}

// optional returns nil for empty strings so coalesce keeps the existing node
// property.
func optional(value string) any {
	if value == "" {
		return nil
	}
	return value
}
