package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/ingest"
	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/movement"
	"rom-stream-go/internal/output"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/storage"
)

func main() {
	var (
		path      = flag.String("path", "", "Path to rawlog .bin file")
		outputDir = flag.String("output-dir", "output", "Directory for session reports")
		driver    = flag.String("storage", "memory", "Storage driver (memory or sqlite)")
		dbPath    = flag.String("storage-path", "replay.db", "SQLite database path")
		limit     = flag.Int("limit", 5, "Max number of results to print")
		quiet     = flag.Bool("quiet", false, "Silence engine logging")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("missing -path")
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	store, err := storage.Open(*driver, *dbPath)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	calc := rom.NewCalculator(movement.MustCatalog())
	sessions := session.NewManager(store)
	svc := analysis.NewService(analysis.NewAnalyzer(calc, sessions), nil)

	ctx := context.Background()
	var records, decoded, failed int
	seen := map[string]struct{}{}
	err = output.ReadRawLog(*path, func(rec output.RawRecord) error {
		records++
		frame, err := ingest.DecodeFrame(rec.Payload)
		if err != nil {
			log.Printf("record %d: %v", rec.Index, err)
			return nil
		}
		decoded++
		seen[frame.SessionID] = struct{}{}

		res, err := svc.ProcessKeypoints(ctx, frame.Points(), frame.Confidence, analysis.Request{
			SessionID:    frame.SessionID,
			BodyPart:     frame.BodyPart,
			MovementType: frame.MovementType,
			Options:      analysis.Options{Side: frame.Side},
		})
		if err != nil {
			failed++
			log.Printf("record %d: %v", rec.Index, err)
			return nil
		}
		if decoded <= *limit {
			fmt.Printf("frame %d session=%s %s/%s rom=%+v", frame.FrameIndex, frame.SessionID, frame.BodyPart, frame.MovementType, res.ROM)
			if res.Validation != nil {
				fmt.Printf(" status=%s", res.Validation.Outcome)
			}
			fmt.Println()
		}
		return nil
	})
	if err != nil {
		log.Printf("read rawlog: %v", err)
	}

	fmt.Printf("summary: records=%d decoded=%d failed=%d sessions=%d\n", records, decoded, failed, len(seen))

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ts := time.Now().Format("20060102_150405")
	for _, id := range ids {
		view, err := sessions.GetSession(ctx, id)
		if err != nil {
			log.Printf("session %s: %v", id, err)
			continue
		}
		name, err := output.WriteSessionReport(*outputDir, ts, id, view)
		if err != nil {
			log.Printf("session %s: %v", id, err)
			continue
		}
		fmt.Printf("wrote %s\n", name)
	}
}
