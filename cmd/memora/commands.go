// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/memoracare/MemoraLocal/cmd/memora/config"
	"github.com/memoracare/MemoraLocal/pkg/logging"
	"github.com/memoracare/MemoraLocal/services/companion/mood"
	"github.com/memoracare/MemoraLocal/services/companion/quotes"
	"github.com/memoracare/MemoraLocal/services/companion/storage/badgerstore"
	"github.com/memoracare/MemoraLocal/services/gateway"
)

// --- Global Command Variables ---
var (
	reportYear  int
	reportMonth int

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "memora",
		Short: "A cli to manage the Memora companion core",
		Long: `Memora is the caregiving companion core: the sync gateway,
				the local mood journal, and the clinical reporting tools.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   parseLogLevel(config.Global.Logging.Level),
				LogDir:  config.Global.Logging.Dir,
				Service: "memora",
				JSON:    config.Global.Logging.JSON,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the sync gateway",
		RunE:  runServe,
	}

	quoteCmd = &cobra.Command{
		Use:   "quote",
		Short: "Print the wellness quote of the day",
		Run: func(cmd *cobra.Command, args []string) {
			q := quotes.SelectForToday(quotes.Wellness)
			fmt.Printf("%q — %s\n", q.Text, q.Author)
		},
	}

	moodCmd = &cobra.Command{
		Use:   "mood",
		Short: "Work with the local mood journal",
	}

	moodLogCmd = &cobra.Command{
		Use:       "log [happy|neutral|sad]",
		Short:     "Record a mood check-in",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"happy", "neutral", "sad"},
		RunE:      runMoodLog,
	}

	moodLatestCmd = &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent mood check-in",
		RunE:  runMoodLatest,
	}

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Mood analytics reports",
	}

	reportMonthCmd = &cobra.Command{
		Use:   "month",
		Short: "Per-day mood bars for one month",
		RunE:  runReportMonth,
	}

	reportYearCmd = &cobra.Command{
		Use:   "year",
		Short: "Per-month wellbeing scores for one year",
		RunE:  runReportYear,
	}
)

func init() {
	now := time.Now()
	reportMonthCmd.Flags().IntVar(&reportYear, "year", now.Year(), "calendar year")
	reportMonthCmd.Flags().IntVar(&reportMonth, "month", int(now.Month()), "calendar month (1-12)")
	reportYearCmd.Flags().IntVar(&reportYear, "year", now.Year(), "calendar year")

	moodCmd.AddCommand(moodLogCmd, moodLatestCmd)
	reportCmd.AddCommand(reportMonthCmd, reportYearCmd)
	rootCmd.AddCommand(serveCmd, quoteCmd, moodCmd, reportCmd)
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// openDB opens the device's embedded database from config.
func openDB() (*badger.DB, error) {
	cfg := badgerstore.DefaultConfig()
	cfg.Path = config.Global.Storage.Path
	cfg.SyncWrites = config.Global.Storage.SyncWrites
	cfg.Logger = logger.Slog()
	return badgerstore.Open(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := gateway.NewServer(gateway.Config{
		Addr:   config.Global.Gateway.ListenAddr,
		Logger: logger.Slog(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func runMoodLog(cmd *cobra.Command, args []string) error {
	m := mood.Mood(args[0])

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	journal, err := mood.NewLog(db, config.Global.Identity.PatientID, nil, logger.Slog())
	if err != nil {
		return err
	}
	defer journal.Close()

	entry, err := journal.Append(m)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s at %s\n", entry.Mood, entry.Timestamp.Format(time.Kitchen))
	return nil
}

func runMoodLatest(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	journal, err := mood.NewLog(db, config.Global.Identity.PatientID, nil, logger.Slog())
	if err != nil {
		return err
	}
	defer journal.Close()

	latest, ok := journal.Latest()
	if !ok {
		fmt.Println("No mood check-ins recorded yet")
		return nil
	}
	fmt.Println(latest)
	return nil
}

func runReportMonth(cmd *cobra.Command, args []string) error {
	if reportMonth < 1 || reportMonth > 12 {
		return fmt.Errorf("month must be 1-12, got %d", reportMonth)
	}

	entries, err := journalSnapshot()
	if err != nil {
		return err
	}

	bars := mood.MonthlyRollup(entries, reportYear, time.Month(reportMonth))
	fmt.Printf("Mood report %04d-%02d\n", reportYear, reportMonth)
	for _, bar := range bars {
		if bar.Counts.Total() == 0 {
			fmt.Printf("  %2d  (no check-ins)\n", bar.Day)
			continue
		}
		fmt.Printf("  %2d  happy=%d neutral=%d sad=%d  prevalent=%s\n",
			bar.Day, bar.Counts.Happy, bar.Counts.Neutral, bar.Counts.Sad, bar.Prevalent)
	}

	if mood.HasConsecutiveSadDays(entries, mood.DefaultAlertWindowDays) {
		fmt.Println("\nALERT: two or more consecutive sad days in the last two weeks")
	}
	return nil
}

func runReportYear(cmd *cobra.Command, args []string) error {
	entries, err := journalSnapshot()
	if err != nil {
		return err
	}

	fmt.Printf("Wellbeing scores %d\n", reportYear)
	for _, ms := range mood.AnnualRollup(entries, reportYear) {
		if ms.Score == nil {
			fmt.Printf("  %-9s  no data\n", ms.Month)
			continue
		}
		fmt.Printf("  %-9s  %s\n", ms.Month, strconv.FormatFloat(*ms.Score, 'f', 1, 64))
	}
	return nil
}

// journalSnapshot loads every journal entry from the local database.
func journalSnapshot() ([]mood.Event, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	journal, err := mood.NewLog(db, config.Global.Identity.PatientID, nil, logger.Slog())
	if err != nil {
		return nil, err
	}
	defer journal.Close()
	return journal.All(), nil
}
