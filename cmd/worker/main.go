// The extraction worker runs as a child process of the orchestrator. It
// writes its event stream to stdout and exits 0 on a finished or
// cooperatively stopped run; anything else is an error exit.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"glownest/config"
	"glownest/worker"
)

func main() {
	log.SetOutput(os.Stderr)

	listingType := flag.String("listing-type", "sale", "sale or rent")
	maxPages := flag.Int("max-pages", 10, "last page to scrape")
	startPage := flag.Int("start-page", 1, "first page to scrape (resume point)")
	delayMS := flag.Int("delay-ms", 4000, "base delay between pages in milliseconds")
	headful := flag.Bool("headful", false, "run the browser with a visible window")
	streetsFile := flag.String("streets", "config/streets.yaml", "street to district reference file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg := &config.Config{StreetsFile: *streetsFile}
	mappings, err := cfg.LoadStreetSeed()
	if err != nil {
		log.Fatalf("load streets: %v", err)
	}

	fetcher, err := worker.NewPlaywrightFetcher(*headful)
	if err != nil {
		log.Fatalf("browser: %v", err)
	}
	defer fetcher.Close()

	scraper := worker.NewScraper(fetcher, worker.NewEmitter(os.Stdout), worker.NewDistrictResolver(mappings))
	err = scraper.Run(ctx, worker.Options{
		ListingType: *listingType,
		MaxPages:    *maxPages,
		StartPage:   *startPage,
		DelayMS:     *delayMS,
		Headful:     *headful,
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
}
