// Command main seeds the remote store with demo plushies, listings and
// engagement. It needs REMOTE_MODE=sql.
package main

import (
	"context"
	"flag"
	"log"

	"softspot/internal/bootstrap"
	"softspot/internal/config"
	"softspot/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of posts to create")
	ratio := flag.Float64("listing-ratio", defaults.ListingRatio, "Share of posts created as marketplace listings")
	shouldClean := flag.Bool("clean", defaults.ShouldClean, "Clean database before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed, 0 picks one from the clock")
	flag.Parse()

	log.Printf("Seeding %d users, %d posts (listing ratio %.2f), clean=%v", *numUsers, *numPosts, *ratio, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.RemoteMode = config.RemoteModeSQL

	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{
		SeedDemo: true,
		Seed: seed.Options{
			NumUsers:     *numUsers,
			NumPosts:     *numPosts,
			ListingRatio: *ratio,
			ShouldClean:  *shouldClean,
			RandSeed:     *randSeed,
			MaxDays:      defaults.MaxDays,
		},
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	defer rt.Close()

	log.Println("Done. Sign in with any identity-provider account to browse the demo data.")
}
