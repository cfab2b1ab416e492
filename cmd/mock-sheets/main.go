package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/listing-enricher/internal/mocksheets"
)

func main() {
	addr := defaultString("MOCK_SHEETS_ADDR", ":8090")
	ids := defaultString("MOCK_SHEETS_SPREADSHEETS", "local-sheet")
	tab := defaultString("MOCK_SHEETS_TAB", "Sheet1")

	fs := flag.NewFlagSet("mock-sheets", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_SHEETS_ADDR)")
	fs.StringVar(&ids, "spreadsheets", ids, "Comma-separated spreadsheet ids to create (env: MOCK_SHEETS_SPREADSHEETS)")
	fs.StringVar(&tab, "tab", tab, "Tab created in each spreadsheet (env: MOCK_SHEETS_TAB)")
	_ = fs.Parse(os.Args[1:])

	srv := mocksheets.New()
	for _, id := range splitCSV(ids) {
		srv.CreateSpreadsheet(id, "mock "+id, tab)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-sheets listening on %s (spreadsheets=%s tab=%s)\n", addr, ids, tab)
	_, _ = fmt.Fprintf(os.Stdout, "point the scraper at it with --sheets-endpoint http://localhost%s\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
