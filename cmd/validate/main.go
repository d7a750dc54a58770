// Command validate checks a NeoWs feed document, and optionally a cache
// database, against what the service relies on: every record parses, dates
// fall inside the seven-day window and ascend, ids are unique, and numeric
// fields are physically plausible. With -db it also verifies every parsed
// record is present and identical in the cache.
//
// Usage:
//
//	go run ./cmd/validate -feed data/mock/feed.json [-start 2024-03-01] [-db data/neo.db]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/neo-radar-service/internal/adapter/sqlite"
	"github.com/couchcryptid/neo-radar-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	feedPath := flag.String("feed", "", "path to a NeoWs feed JSON document")
	start := flag.String("start", "", "first window date (default: earliest date in the feed)")
	dbPath := flag.String("db", "", "optional cache database to compare against")
	flag.Parse()

	if *feedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*feedPath, *start, *dbPath); code != 0 {
		os.Exit(code)
	}
}

func run(feedPath, start, dbPath string) int {
	fmt.Println("=== NEO Feed Validation ===")
	fmt.Println()

	doc, err := os.ReadFile(feedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read feed: %v\n", err)
		return 1
	}

	neos, err := domain.ParseFeed(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse feed: %v\n", err)
		return 1
	}

	if start == "" && len(neos) > 0 {
		start = neos[0].CloseApproachDate
	}
	var window domain.Window
	if start != "" {
		first, err := domain.ParseDate(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		window = domain.ComputeWindow(first)
	}

	phases := []*phase{
		validateWindow(neos, window),
		validateOrdering(neos),
		validateFields(neos),
	}
	if dbPath != "" {
		phases = append(phases, validateCache(neos, dbPath))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d", len(neos))
	if start != "" {
		fmt.Printf(", window %s..%s", window.Start(), window.End())
	}
	fmt.Println()

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateWindow(neos []domain.NearEarthObject, window domain.Window) *phase {
	p := &phase{name: "Window membership"}
	if window.Start() == "" {
		return p
	}
	for _, n := range neos {
		if !window.Contains(n.CloseApproachDate) {
			p.errorf("%s (%s): date %s outside %s..%s", n.ID, n.Name, n.CloseApproachDate, window.Start(), window.End())
		}
	}
	return p
}

func validateOrdering(neos []domain.NearEarthObject) *phase {
	p := &phase{name: "Ascending dates, unique ids"}
	seen := make(map[string]string, len(neos))
	for i, n := range neos {
		if i > 0 && n.CloseApproachDate < neos[i-1].CloseApproachDate {
			p.errorf("record %d (%s): date %s precedes %s", i, n.ID, n.CloseApproachDate, neos[i-1].CloseApproachDate)
		}
		if prev, ok := seen[n.ID]; ok {
			p.errorf("duplicate id %s on %s and %s", n.ID, prev, n.CloseApproachDate)
		}
		seen[n.ID] = n.CloseApproachDate
	}
	return p
}

func validateFields(neos []domain.NearEarthObject) *phase {
	p := &phase{name: "Field plausibility"}
	for _, n := range neos {
		if n.Name == "" {
			p.errorf("%s: empty name", n.ID)
		}
		if n.EstimatedDiameterKm <= 0 {
			p.errorf("%s: diameter %g km", n.ID, n.EstimatedDiameterKm)
		}
		if n.RelativeVelocityKmS <= 0 {
			p.errorf("%s: velocity %g km/s", n.ID, n.RelativeVelocityKmS)
		}
		if n.MissDistanceAU < 0 {
			p.errorf("%s: miss distance %g AU", n.ID, n.MissDistanceAU)
		}
	}
	return p
}

func validateCache(neos []domain.NearEarthObject, dbPath string) *phase {
	p := &phase{name: "Cache parity"}
	if _, err := os.Stat(dbPath); err != nil {
		p.errorf("cache database: %v", err)
		return p
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Options{Path: dbPath})
	if err != nil {
		p.errorf("open cache: %v", err)
		return p
	}
	defer store.Close()

	for _, want := range neos {
		got, ok, err := store.Get(ctx, want.ID)
		switch {
		case err != nil:
			p.errorf("%s: %v", want.ID, err)
		case !ok:
			p.errorf("%s: missing from cache", want.ID)
		case got.Name != want.Name || got.CloseApproachDate != want.CloseApproachDate ||
			got.PotentiallyHazardous != want.PotentiallyHazardous:
			p.errorf("%s: cache has %q on %s (hazardous=%t), feed has %q on %s (hazardous=%t)",
				want.ID, got.Name, got.CloseApproachDate, got.PotentiallyHazardous,
				want.Name, want.CloseApproachDate, want.PotentiallyHazardous)
		}
	}
	return p
}
