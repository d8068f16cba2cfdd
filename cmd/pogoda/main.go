package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/pogodaio/pogoda/internal/aggregate"
	"github.com/pogodaio/pogoda/internal/api"
	"github.com/pogodaio/pogoda/internal/ingest"
	"github.com/pogodaio/pogoda/internal/models"
	"github.com/pogodaio/pogoda/internal/openmeteo"
	"github.com/pogodaio/pogoda/internal/store"
)

// The registry is the 16 Polish voivodeship capitals. Read-only at run
// time; coordinates are seeded at startup.
var defaultCities = []models.City{
	{Name: "Warszawa", Latitude: 52.2297, Longitude: 21.0122},
	{Name: "Kraków", Latitude: 50.0647, Longitude: 19.9450},
	{Name: "Łódź", Latitude: 51.7592, Longitude: 19.4550},
	{Name: "Wrocław", Latitude: 51.1079, Longitude: 17.0385},
	{Name: "Poznań", Latitude: 52.4064, Longitude: 16.9252},
	{Name: "Gdańsk", Latitude: 54.3520, Longitude: 18.6466},
	{Name: "Szczecin", Latitude: 53.4285, Longitude: 14.5528},
	{Name: "Bydgoszcz", Latitude: 53.1235, Longitude: 18.0084},
	{Name: "Lublin", Latitude: 51.2465, Longitude: 22.5684},
	{Name: "Białystok", Latitude: 53.1325, Longitude: 23.1688},
	{Name: "Katowice", Latitude: 50.2649, Longitude: 19.0238},
	{Name: "Gorzów Wlkp.", Latitude: 52.7368, Longitude: 15.2288},
	{Name: "Zielona Góra", Latitude: 51.9356, Longitude: 15.5062},
	{Name: "Opole", Latitude: 50.6751, Longitude: 17.9213},
	{Name: "Kielce", Latitude: 50.8661, Longitude: 20.6286},
	{Name: "Rzeszów", Latitude: 50.0413, Longitude: 21.9990},
}

const defaultTimezone = "Europe/Warsaw"

func main() {
	dbPath := flag.String("db", "data/pogoda.db", "path to SQLite database")
	port := flag.String("port", "8080", "HTTP server port")
	noPoll := flag.Bool("no-poll", false, "disable the scheduler (server only, for local dev)")
	once := flag.Bool("once", false, "run a single ingestion cycle and exit")
	aggregateAll := flag.Bool("aggregate", false, "aggregate the last 30 days for all cities and exit")
	backfillDaily := flag.Bool("backfill-daily", false, "backfill daily readings for the last 30 days and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")

	// Load timezone once at startup
	tzName := os.Getenv("POGODA_TZ")
	if tzName == "" {
		tzName = defaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Printf("Warning: could not load %s timezone, using UTC: %v", tzName, err)
		loc = time.UTC
	}

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	for _, city := range defaultCities {
		if err := st.UpsertCity(city); err != nil {
			log.Fatalf("upsert city %s: %v", city.Name, err)
		}
	}
	log.Println("city registry seeded")

	client := openmeteo.NewClient(loc)
	cycle := ingest.NewCycle(st, client, loc)
	aggregator := aggregate.New(st, client, loc)
	scheduler := ingest.NewScheduler(cycle, aggregator, loc)
	server := api.NewServer(st, client, cycle, aggregator, *port, loc)

	if *once {
		log.Println("running single ingestion cycle")
		report, err := cycle.Run(context.Background())
		if err != nil {
			log.Fatalf("ingest: %v", err)
		}
		log.Printf("done: %d succeeded, %d failed", len(report.Succeeded), len(report.Failed))
		return
	}

	if *aggregateAll {
		log.Println("aggregating last 30 days for all cities")
		reports, err := aggregator.All(context.Background())
		if err != nil {
			log.Fatalf("aggregate: %v", err)
		}
		for _, r := range reports {
			status := fmt.Sprintf("%d months written", r.Written)
			if r.Error != "" {
				status = "ERROR: " + r.Error
			}
			log.Printf("  %s: %s", r.City, status)
		}
		return
	}

	if *backfillDaily {
		log.Println("backfilling daily readings for the last 30 days")
		cities, err := st.GetCities()
		if err != nil {
			log.Fatalf("list cities: %v", err)
		}
		for _, city := range cities {
			n, err := aggregator.BackfillDaily(context.Background(), city)
			if err != nil {
				log.Printf("  %s: %v", city.Name, err)
				continue
			}
			log.Printf("  %s: %d daily readings", city.Name, n)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !*noPoll {
		go scheduler.Run(ctx)
	} else {
		log.Println("scheduler disabled (--no-poll)")
	}

	log.Printf("starting server on :%s", *port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
