// The aggregator merges every result and checkpoint file into the canonical
// dataset. It runs standalone so partial data from an interrupted run can be
// consolidated without restarting the coordinator.
package main

import (
	"flag"
	"log"

	"farematrix/internal/aggregate"
)

func main() {
	resultsDir := flag.String("results-dir", "fare_matrix_results", "Directory holding batch result files")
	checkpointDir := flag.String("checkpoint-dir", "flight_checkpoints", "Directory holding worker checkpoint files")
	forceRefresh := flag.Bool("force-refresh", false, "Rebuild from source files, ignoring the existing canonical data")
	csvPath := flag.String("csv", "", "Also export the merged quotes as CSV to this path")
	flag.Parse()

	agg := aggregate.New(*resultsDir, *checkpointDir)
	path, err := agg.Run(*forceRefresh)
	if err != nil {
		log.Fatalf("aggregation failed: %v", err)
	}

	data, err := aggregate.LoadCanonical(*resultsDir)
	if err != nil {
		log.Fatalf("read canonical data: %v", err)
	}
	log.Printf("aggregation complete file=%s quotes=%d providers=%d routes=%d",
		path, data.TotalQuotes, len(data.Statistics.Providers), data.Statistics.UniqueRoutes)

	if *csvPath != "" {
		if err := aggregate.WriteCSV(data.Quotes, *csvPath); err != nil {
			log.Fatalf("csv export failed: %v", err)
		}
		log.Printf("csv export written file=%s rows=%d", *csvPath, len(data.Quotes))
	}
}
