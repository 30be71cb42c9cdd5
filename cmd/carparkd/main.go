package main

import (
	"flag"
	"os"

	"carpark/pkg/blob"
	"carpark/pkg/log"
	"carpark/pkg/server"
	"carpark/pkg/tree"
)

const (
	storageDirPerm = 0o750

	version = "0.1.0"
)

func main() {
	// Initialize logger first
	_ = log.Logger

	storageDir := flag.String("storage", "build/storage", "Storage directory path")
	dbPath := flag.String("db", "build/carpark.db", "Metadata database path")
	addr := flag.String("addr", ":3002", "Listen address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	setupLogin := flag.String("setup-login", "", "Create a superuser with this login and exit")
	setupEmail := flag.String("setup-email", "", "Email for the created superuser")
	setupPassword := flag.String("setup-password", "", "Password for the created superuser")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	if err := os.MkdirAll(*storageDir, storageDirPerm); err != nil {
		log.Fatal().Err(err).Str("storage_dir", *storageDir).Msg("Failed to create storage directory")
	}

	store, err := tree.NewStore(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open metadata store")
	}
	defer func() { _ = store.Close() }()

	if *setupLogin != "" {
		user, err := store.CreateUser(*setupLogin, *setupPassword, *setupEmail, true)
		if err != nil {
			log.Fatal().Err(err).Str("login", *setupLogin).Msg("Failed to create user")
		}
		log.Info().Str("login", user.Login).
			Str("access_key", user.AccessKey).
			Str("secret_key", user.SecretKey).
			Msg("Superuser created, store these credentials")
		return
	}

	if count, err := store.CountUsers(); err == nil && count == 0 {
		log.Warn().Msg("No users exist, run with -setup-login to create one")
	}

	srv := server.New(store, blob.New(*storageDir), version)
	if err := srv.Start(*addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
