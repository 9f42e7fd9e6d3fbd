// cmd/dbtools/seed/main.go
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/config"
	"github.com/codr1/tidyquote/internal/db"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "Path to the YAML configuration file")
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides -config)")
		seedPath   = flag.String("file", "", "Seed catalogue YAML (default: built-in catalogue)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	database, err := openDatabase(*configPath, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	cat, err := loadCatalogue(*seedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load seed catalogue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := database.ApplySeed(ctx, cat); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply seed catalogue")
	}

	log.Info().
		Int("field_configs", len(cat.FieldConfigs)).
		Int("category_defaults", len(cat.CategoryDefaults)).
		Int("scheduling_rules", len(cat.SchedulingRules)).
		Int("formulas", len(cat.Formulas)).
		Msg("Seed catalogue applied")
}

func openDatabase(configPath, dbPath string) (*db.DB, error) {
	if dbPath != "" {
		return db.New(dbPath)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return db.NewFromConfig(cfg)
}

func loadCatalogue(path string) (*db.SeedCatalogue, error) {
	if path == "" {
		return db.LoadSeedCatalogue()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return db.ParseSeed(f)
}
