// Command agentkey mints an API key for an agent and prints it once. The
// database stores only the argon2id hash.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeguard/backend-quotes/internal/auth"
	"github.com/tradeguard/backend-quotes/internal/config"
)

func main() {
	label := flag.String("label", "", "human-readable label for the key (required)")
	flag.Parse()
	if *label == "" {
		fmt.Fprintln(os.Stderr, "usage: agentkey -label <label>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer pool.Close()

	minted, err := auth.MintKey(ctx, &auth.PGKeyStore{Pool: pool}, *label)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mint key:", err)
		os.Exit(1)
	}

	fmt.Printf("key id: %s\n", minted.ID)
	fmt.Printf("api key: %s\n", minted.Raw)
	fmt.Println("store the api key now; it cannot be recovered later")
}
