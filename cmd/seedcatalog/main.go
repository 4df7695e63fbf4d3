// Command seedcatalog loads file records into a catalog database, either from
// a CSV listing or as a synthetic forecast archive, and optionally creates
// placeholder files under a local storage root so a build can run end to end.
//
// Usage:
//
//	go run ./cmd/seedcatalog -db metget.db -csv testdata/catalog.csv
//
//	go run ./cmd/seedcatalog -db metget.db -service gfs-ncep \
//	  -start 2024-09-10T00:00:00Z -cycles 8 -hours 120 -root data
//
// CSV columns: service,cycle,valid_time,filepath[,storm,basin,advisory,storm_year,ensemble_member]
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/catalog"
	"github.com/couchcryptid/metget-build-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "metget.db", "catalog database path")
	csvPath := flag.String("csv", "", "CSV listing of records to ingest")
	service := flag.String("service", "", "service to synthesize records for")
	start := flag.String("start", "", "first synthetic cycle (RFC 3339)")
	cycles := flag.Int("cycles", 4, "number of synthetic cycles")
	hours := flag.Int("hours", 48, "forecast length of each synthetic cycle in hours")
	root := flag.String("root", "", "local storage root to create placeholder files under")
	flag.Parse()

	if (*csvPath == "") == (*service == "") {
		flag.Usage()
		return fmt.Errorf("exactly one of -csv or -service is required")
	}

	var (
		recs []domain.CatalogRecord
		err  error
	)
	if *csvPath != "" {
		recs, err = readCSV(*csvPath)
	} else {
		recs, err = synthesize(domain.ServiceID(*service), *start, *cycles, *hours)
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	cat, err := catalog.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	perService := map[domain.ServiceID]int{}
	for _, rec := range recs {
		if _, err := cat.Ingest(ctx, rec); err != nil {
			return fmt.Errorf("ingest %s: %w", rec.Filepath, err)
		}
		perService[rec.Service]++
		if *root != "" {
			if err := touch(filepath.Join(*root, filepath.FromSlash(rec.Filepath))); err != nil {
				return err
			}
		}
	}

	for svc, n := range perService {
		log.Printf("%s: %d records", svc, n)
	}
	log.Printf("total: %d records into %s", len(recs), *dbPath)
	return nil
}

func readCSV(path string) ([]domain.CatalogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	var recs []domain.CatalogRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && row[0] == "service" {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func parseRow(row []string) (domain.CatalogRecord, error) {
	if len(row) < 4 {
		return domain.CatalogRecord{}, fmt.Errorf("want at least 4 columns, got %d", len(row))
	}
	cycle, err := time.Parse(time.RFC3339, row[1])
	if err != nil {
		return domain.CatalogRecord{}, fmt.Errorf("cycle: %w", err)
	}
	valid, err := time.Parse(time.RFC3339, row[2])
	if err != nil {
		return domain.CatalogRecord{}, fmt.Errorf("valid_time: %w", err)
	}

	rec := domain.CatalogRecord{
		Service:   domain.ServiceID(strings.TrimSpace(row[0])),
		Cycle:     cycle,
		ValidTime: valid,
		Filepath:  row[3],
	}
	col := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	rec.Scope = domain.Scope{
		Storm:          col(4),
		Basin:          col(5),
		Advisory:       col(6),
		EnsembleMember: col(8),
	}
	if y := col(7); y != "" {
		if rec.Scope.StormYear, err = strconv.Atoi(y); err != nil {
			return domain.CatalogRecord{}, fmt.Errorf("storm_year: %w", err)
		}
	}
	return rec, nil
}

// synthesize lays out cycles at the service's cycle interval, each with
// valid times every time step out to hours.
func synthesize(id domain.ServiceID, startStr string, cycles, hours int) ([]domain.CatalogRecord, error) {
	info, err := domain.LookupService(id)
	if err != nil {
		return nil, err
	}
	if info.Scope != domain.ScopeNone {
		return nil, fmt.Errorf("synthetic records are only generated for services without a scope, %s is %s scoped", id, info.Scope)
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	var recs []domain.CatalogRecord //nolint:prealloc // size depends on service time step
	for c := 0; c < cycles; c++ {
		cycle := start.Add(time.Duration(c) * info.CycleInterval).UTC()
		for tau := time.Duration(0); tau <= time.Duration(hours)*time.Hour; tau += info.TimeStep {
			valid := cycle.Add(tau)
			recs = append(recs, domain.CatalogRecord{
				Service:   id,
				Cycle:     cycle,
				ValidTime: valid,
				Filepath: fmt.Sprintf("%s/%s/%s.t%sz.f%03d.grib2",
					id, cycle.Format("20060102"), strings.SplitN(string(id), "-", 2)[0],
					cycle.Format("15"), int(tau/time.Hour)),
			})
		}
	}
	return recs, nil
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}
