// Command gridserver serves the grid data endpoints of a catalog from
// PostgreSQL, together with a server-rendered admin console.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gnemet/admingrid"
	"github.com/gnemet/admingrid/database/rowstore"
	"github.com/gnemet/admingrid/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.NewLogger(os.Stderr)

	catalog, err := admingrid.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("Failed to load catalog %s: %v", cfg.Catalog.Path, err)
	}

	db, ok := cfg.DefaultDatabase()
	if !ok {
		log.Fatal("No default database configured")
	}
	store, err := rowstore.Open(db.DSN(), 10, 5*time.Minute, time.Hour, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	source := func(m *admingrid.ModelDef) admingrid.DataSource {
		return store.Table(m.Identity, StoredColumns(m))
	}
	srv := newServer(cfg, catalog, source, logger)

	addr := ":" + cfg.Server.Port
	logger.Info("Server starting", "addr", addr, "models", len(catalog.Models))
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatal(err)
	}
}
