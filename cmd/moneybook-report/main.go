// Command moneybook-report exports a period summary from the SQLite ledger
// without going through the HTTP API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"moneybook/internal/analytics"
	"moneybook/internal/cli"
	"moneybook/internal/config"
	apphttp "moneybook/internal/http"
	applog "moneybook/internal/log"
	"moneybook/internal/report"
	"moneybook/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	var (
		dbPath = flag.String("db", cfg.SQLiteDBPath, "SQLite database path")
		mode   = flag.String("mode", string(analytics.Monthly), "period: daily, monthly, yearly, custom or all")
		date   = flag.String("date", "", "reference date YYYY-MM-DD (default today)")
		start  = flag.String("start", "", "custom range start YYYY-MM-DD")
		end    = flag.String("end", "", "custom range end YYYY-MM-DD")
		format = flag.String("format", string(report.CSV), "csv, xlsx or html")
		lang   = flag.String("lang", cfg.Language, "display language for amounts")
		out    = flag.String("out", "", "output file, - for stdout (default derived from the period)")
	)
	flag.Parse()

	logger := cli.SetupLogger(cfg, applog.ComponentExport)
	if err := run(*dbPath, *mode, *date, *start, *end, *format, *lang, *out, logger); err != nil {
		logger.Error("Export failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(dbPath, mode, date, start, end, formatName, lang, out string, logger *applog.Logger) error {
	f, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}
	now := time.Now()
	scope, err := apphttp.ParseScope(url.Values{
		"mode":  {mode},
		"date":  {date},
		"start": {start},
		"end":   {end},
	}, now)
	if err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	txs, err := repo.ListTransactions(context.Background())
	if err != nil {
		return err
	}
	summary := analytics.Summarize(txs, scope)

	if out == "" {
		out = report.FileName(summary.Title, now, f)
	}
	var (
		w  io.Writer = os.Stdout
		bw *bufio.Writer
	)
	if out != "-" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer file.Close()
		bw = bufio.NewWriter(file)
		w = bw
	}

	if err := report.Write(w, f, report.Build(summary, lang, now)); err != nil {
		return err
	}
	if bw != nil {
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
	}
	logger.Info("Report written",
		"file", out,
		applog.FieldFormat, string(f),
		applog.FieldScopeMode, string(summary.Scope.Mode),
		"rows", len(summary.Transactions))
	return nil
}
