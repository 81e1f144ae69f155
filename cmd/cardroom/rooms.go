package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lox/cardroom/internal/protocol"
)

// RoomsCmd lists the public rooms of a running server.
type RoomsCmd struct {
	Server  string        `kong:"default='http://localhost:8080',help='Server base URL'"`
	Timeout time.Duration `kong:"default='5s',help='Request timeout'"`
	JSON    bool          `kong:"help='Print raw JSON'"`
}

func (c *RoomsCmd) Run(g *Globals) error {
	setupOutput(g)

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	rooms, err := fetchRooms(ctx, http.DefaultClient, c.Server)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)
	}
	printRooms(os.Stdout, rooms)
	return nil
}

func fetchRooms(ctx context.Context, client *http.Client, base string) ([]protocol.RoomSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	var rooms []protocol.RoomSummary
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

func printRooms(w io.Writer, rooms []protocol.RoomSummary) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No public rooms"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("CODE")+"\t"+
		headerStyle.Render("HOST")+"\t"+
		headerStyle.Render("GAME")+"\t"+
		headerStyle.Render("PLAYERS")+"\t"+
		headerStyle.Render("OPEN FOR"))
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			codeStyle.Render(r.Code),
			r.HostName,
			r.GameType,
			r.PlayerCount, r.MaxPlayers,
			time.Since(r.CreatedAt).Round(time.Second),
		)
	}
	_ = tw.Flush()
}
