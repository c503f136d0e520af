// Command import_items loads the shop catalog from an xlsx workbook.
//
//	import_items -file catalog.xlsx [-sheet Items] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/shop_economy/internal/clock"
	"github.com/mroshb/shop_economy/internal/config"
	"github.com/mroshb/shop_economy/internal/database"
	"github.com/mroshb/shop_economy/internal/services"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/logger"
	"github.com/xuri/excelize/v2"
)

func main() {
	file := flag.String("file", "", "path of the catalog workbook")
	sheet := flag.String("sheet", "", "sheet to read (default: first sheet)")
	dryRun := flag.Bool("dry-run", false, "parse and validate without writing")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	logger.Init()
	defer logger.Sync()

	f, err := excelize.OpenFile(*file)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	sheetName := *sheet
	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			log.Fatal("no sheets found")
		}
		sheetName = sheets[0]
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Fatalf("failed to read sheet %s: %v", sheetName, err)
	}

	items, errs := parseRows(rows)
	for _, err := range errs {
		fmt.Println("skipped", err)
	}
	for _, item := range items {
		if err := services.ValidateItem(&item); err != nil {
			log.Fatalf("item %s: %v", item.ID, err)
		}
	}
	fmt.Printf("Parsed %d items from sheet %s (%d skipped)\n", len(items), sheetName, len(errs))
	if *dryRun || len(items) == 0 {
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}
	db, err := database.Connect(cfg.GetDSN(), false)
	if err != nil {
		log.Fatal("failed to connect database: ", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	catalog := services.NewCatalogService(services.Env{
		DB:       db,
		Settings: settings.NewResolver(settings.NewDBSource(db)),
		Clock:    clock.New(cfg.Location()),
		Retry:    cfg.RetryPolicy(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := catalog.Upsert(ctx, items); err != nil {
		log.Fatal("import failed: ", err)
	}

	fmt.Printf("Successfully imported %d items.\n", len(items))
}
