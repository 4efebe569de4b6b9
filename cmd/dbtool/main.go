package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"pharmacy-delivery-service/internal/adapters/repositories"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/config"
	"pharmacy-delivery-service/internal/platform/db"
)

// dbtool prepares a database out of band: schema, demo seed, and an
// integrity check of the persisted route state.
func main() {
	seed := flag.Bool("seed", true, "load SEED_PATH into an empty database")
	verify := flag.Bool("verify", true, "load the route state and check its invariants")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	pool, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	ctx := context.Background()
	repo := repositories.NewSQLRouteRepository(pool, cfg.DBDriver)

	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, pool); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	if *seed {
		log.Println("Seeding database...")
		n, err := repositories.SeedFromJSON(ctx, repo, cfg.SeedPath)
		if err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		log.Printf("Seeding complete. records=%d", n)
	}

	if *verify {
		store := assignment.NewStore(repo)
		if err := store.Load(ctx); err != nil {
			log.Fatalf("route state is inconsistent: %v", err)
		}
		if err := store.Verify(); err != nil {
			log.Fatalf("route state is inconsistent: %v", err)
		}
		log.Printf("Route state ok. agents=%d pending=%d", len(store.Agents()), len(store.Pending()))
	}
}
