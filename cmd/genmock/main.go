// Command genmock writes a deterministic NeoWs-shaped feed document covering
// the seven-day window that starts at -start. The output is parsed with the
// real domain parser before it is written, so every fixture it produces is
// accepted by the service.
//
// Usage:
//
//	go run ./cmd/genmock -start 2024-03-01 -per-day 4 -out data/mock/feed.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/domain"
)

// Names are drawn from real provisional designations to keep fixtures
// recognisable.
var designations = []string{
	"(2010 PK9)", "465633 (2009 JR5)", "(2008 QV11)", "(2019 GT3)",
	"(2021 AF8)", "(2023 DZ2)", "(2017 YE5)", "(2020 XR)",
}

type feedDoc struct {
	ElementCount     int                         `json:"element_count"`
	NearEarthObjects map[string][]map[string]any `json:"near_earth_objects"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	start := flag.String("start", time.Now().Format(domain.DateLayout), "first date of the window (YYYY-MM-DD)")
	perDay := flag.Int("per-day", 3, "records generated for each date")
	seed := flag.Uint64("seed", 1, "random seed")
	out := flag.String("out", "data/mock/feed.json", "output path")
	flag.Parse()

	first, err := domain.ParseDate(*start)
	if err != nil {
		return err
	}
	if *perDay < 0 {
		return fmt.Errorf("-per-day must not be negative")
	}

	window := domain.ComputeWindow(first)
	doc := generate(window, *perDay, rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)))

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	neos, err := domain.ParseFeed(data)
	if err != nil {
		return fmt.Errorf("generated feed does not parse: %w", err)
	}

	if err := writeFile(*out, data); err != nil {
		return fmt.Errorf("writing feed fixture: %w", err)
	}
	log.Printf("wrote %d records for %s..%s to %s", len(neos), window.Start(), window.End(), *out)

	printStats(neos)
	return nil
}

func generate(window domain.Window, perDay int, rng *rand.Rand) feedDoc {
	doc := feedDoc{NearEarthObjects: make(map[string][]map[string]any, len(window))}
	id := 2000000 + rng.IntN(1000000)
	for _, date := range window {
		records := make([]map[string]any, 0, perDay)
		for range perDay {
			id += 1 + rng.IntN(500)
			records = append(records, record(strconv.Itoa(id), date, rng))
		}
		doc.NearEarthObjects[date] = records
		doc.ElementCount += len(records)
	}
	return doc
}

func record(id, date string, rng *rand.Rand) map[string]any {
	diameterMin := 0.01 + rng.Float64()*1.5
	return map[string]any{
		"id":                   id,
		"neo_reference_id":     id,
		"name":                 designations[rng.IntN(len(designations))],
		"absolute_magnitude_h": 17 + rng.Float64()*12,
		"estimated_diameter": map[string]any{
			"kilometers": map[string]any{
				"estimated_diameter_min": diameterMin,
				"estimated_diameter_max": diameterMin * 2.236,
			},
		},
		"is_potentially_hazardous_asteroid": rng.IntN(6) == 0,
		"close_approach_data": []map[string]any{{
			"close_approach_date": date,
			"relative_velocity": map[string]any{
				// NeoWs encodes these as strings.
				"kilometers_per_second": strconv.FormatFloat(2+rng.Float64()*30, 'f', 10, 64),
			},
			"miss_distance": map[string]any{
				"astronomical": strconv.FormatFloat(0.001+rng.Float64()*0.5, 'f', 10, 64),
			},
			"orbiting_body": "Earth",
		}},
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printStats(neos []domain.NearEarthObject) {
	var hazardous int
	var closest domain.NearEarthObject
	for i, n := range neos {
		if n.PotentiallyHazardous {
			hazardous++
		}
		if i == 0 || n.MissDistanceAU < closest.MissDistanceAU {
			closest = n
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(neos))
	fmt.Printf("Hazardous: %d\n", hazardous)
	if len(neos) > 0 {
		fmt.Printf("Closest: %s %s (%.4f AU on %s)\n", closest.ID, closest.Name, closest.MissDistanceAU, closest.CloseApproachDate)
	}
}
