package main

import (
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snarg/freescanner-live/internal/database"
	"github.com/snarg/freescanner-live/internal/livefeed"
	"github.com/snarg/freescanner-live/internal/wsclient"
)

// liveStats feeds the metrics collector from the live feed and its server
// link.
type liveStats struct {
	service *livefeed.Service
	ws      *wsclient.Client
}

func (s liveStats) QueueLength() int  { return s.service.QueueLength() }
func (s liveStats) IsConnected() bool { return s.ws.IsConnected() }
func (s liveStats) Reconnects() int64 { return s.ws.Reconnects() }

func dbPool(db *database.DB) *pgxpool.Pool {
	if db == nil {
		return nil
	}
	return db.Pool
}

// bellOutput keeps terminal bells off stdout when stdout carries headless
// logs.
func bellOutput(headless bool, stdout, stderr io.Writer) io.Writer {
	if headless {
		return stderr
	}
	return stdout
}
