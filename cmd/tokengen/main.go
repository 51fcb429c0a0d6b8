// Command tokengen prints a signed bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"

	"plate-bidding/internal/auth"
	"plate-bidding/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to an optional YAML config file")
	userID := flag.String("user", "", "bidder or operator id")
	name := flag.String("name", "", "display name")
	operator := flag.Bool("operator", false, "grant operator rights")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to the configured JWT TTL")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	lifetime := cfg.Auth.JwtTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	display := *name
	if display == "" {
		display = *userID
	}

	token, err := auth.GenerateJWT(*userID, display, *operator, cfg.Auth.JwtSecret, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
