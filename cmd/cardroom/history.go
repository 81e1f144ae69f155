package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lox/cardroom/internal/archive"
	"github.com/lox/cardroom/internal/config"
)

// HistoryCmd prints recently archived games.
type HistoryCmd struct {
	Config string `kong:"short='c',default='cardroom.hcl',type='path',help='Path to the HCL config file'"`
	Driver string `kong:"enum=',sqlite,file',default='',help='Archive driver (defaults to the configured one)'"`
	Path   string `kong:"help='Archive database file or directory'"`
	Limit  int    `kong:"short='n',default='20',help='Number of games to show'"`
	JSON   bool   `kong:"help='Print records as JSON'"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	setupOutput(g)

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	driver, path := cfg.Archive.Driver, cfg.Archive.Path
	if c.Driver != "" {
		driver = c.Driver
	}
	if c.Path != "" {
		path = c.Path
	}
	if driver == config.ArchiveNone {
		return fmt.Errorf("archiving is disabled in %s", c.Config)
	}

	store, err := archive.Open(driver, path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.Recent(context.Background(), c.Limit)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	printHistory(os.Stdout, records)
	return nil
}

func printHistory(w io.Writer, records []archive.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No archived games"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("ENDED")+"\t"+
		headerStyle.Render("ROOM")+"\t"+
		headerStyle.Render("GAME")+"\t"+
		headerStyle.Render("REASON")+"\t"+
		headerStyle.Render("ROUNDS")+"\t"+
		headerStyle.Render("DURATION")+"\t"+
		headerStyle.Render("WINNER"))
	for _, rec := range records {
		winner := dimStyle.Render("-")
		if rk, ok := rec.Winner(); ok {
			winner = winnerStyle.Render(fmt.Sprintf("%s (%d)", rk.Name, rk.Score))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.EndedAt.Local().Format(time.DateTime),
			codeStyle.Render(rec.RoomCode),
			rec.GameType,
			rec.EndReason,
			rec.Rounds,
			(time.Duration(rec.DurationMs) * time.Millisecond).Round(time.Second),
			winner,
		)
	}
	_ = tw.Flush()
}
