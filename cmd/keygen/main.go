package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/castellan-api/castellan/internal/credential"
)

func main() {
	client := flag.String("client", "", "app client ID (required)")
	name := flag.String("name", "", "human-friendly key name (required)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h), or 'never'")
	hashSecret := flag.String("hash-secret", "", "credential hash secret (overrides env)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *client == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -client and -name are required")
		os.Exit(1)
	}

	secret := *hashSecret
	if secret == "" {
		secret = os.Getenv("API_KEY_HASH_SECRET")
	}
	if secret == "" {
		secret = os.Getenv("JWT_SIGNING_SECRET")
	}
	if secret == "" {
		log.Fatal("hash secret required: set -hash-secret, API_KEY_HASH_SECRET or JWT_SIGNING_SECRET")
	}

	codec, err := credential.NewCodec([]byte(secret))
	if err != nil {
		log.Fatalf("failed to build codec: %v", err)
	}

	plaintext, prefix, hash, err := codec.Generate()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	var expiresAt *time.Time
	if *expires != "never" {
		dur, err := credential.ParseDuration(*expires)
		if err != nil {
			log.Fatalf("invalid expires: %v", err)
		}
		t := time.Now().Add(dur)
		expiresAt = &t
	}

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "castellan")
		pass := envOrDefault("DB_PASSWORD", "castellan-dev")
		dbname := envOrDefault("DB_NAME", "castellan")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO api_keys (app_client_id, key_hash, key_prefix, name, is_active, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id
	`, *client, hash, prefix, *name, expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== Castellan API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:     %s\n", keyID)
	fmt.Printf("  Key Prefix: %s\n", prefix)
	fmt.Printf("  App Client: %s\n", *client)
	if expiresAt != nil {
		fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Expires:    never\n")
	}
	fmt.Println()
	fmt.Println("  API Key (save this - it will NOT be shown again):")
	fmt.Printf("  %s\n", plaintext)
	fmt.Println()
	fmt.Println("===================================")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
