package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"

	"rom-stream-go/internal/output"
)

var errLimit = errors.New("limit reached")

func main() {
	var (
		path  = flag.String("path", "", "Path to rawlog .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 for all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	count := 0
	err := output.ReadRawLog(*path, func(rec output.RawRecord) error {
		if *limit > 0 && count >= *limit {
			return errLimit
		}
		if len(rec.Payload) == 0 {
			log.Printf("record %d: empty payload", rec.Index)
			return nil
		}

		var decoded any
		if err := cbor.Unmarshal(rec.Payload, &decoded); err != nil {
			log.Printf("record %d: CBOR decode error: %v", rec.Index, err)
			return nil
		}

		pretty, err := json.MarshalIndent(output.NormalizeJSONValue(decoded), "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", rec.Index, err)
			return nil
		}

		log.Printf("record %d timestamp=%s size=%d", rec.Index, rec.Time.Format(time.RFC3339Nano), len(rec.Payload))
		fmt.Println(string(pretty))
		count++
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		log.Fatalf("read rawlog: %v", err)
	}
}
