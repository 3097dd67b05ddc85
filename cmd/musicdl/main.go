package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ytget/musicdl/internal/client"
	"github.com/ytget/musicdl/internal/model"
	"github.com/ytget/musicdl/internal/prefs"
	"github.com/ytget/musicdl/internal/state"
	"github.com/ytget/musicdl/internal/status"
	syncer "github.com/ytget/musicdl/internal/sync"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const usageText = `musicdl v%s - client for a personal music download service

Usage:
  musicdl [flags] login <user> <password> <host> <port>
  musicdl [flags] logout
  musicdl [flags] sections
  musicdl [flags] albums
  musicdl [flags] songs <section>
  musicdl [flags] request <url> <name> <artist> <album> <section>
  musicdl [flags] cancel <name> <section> <album>
  musicdl [flags] status
  musicdl [flags] sync <section> <dir>

Flags:
`

func main() {
	_ = godotenv.Load()

	var (
		host      = pflag.String("host", "", "server host (overrides saved preferences)")
		port      = pflag.Int("port", 0, "server port (overrides saved preferences)")
		user      = pflag.String("user", "", "username (overrides saved preferences)")
		password  = pflag.String("password", "", "password (overrides saved preferences)")
		prefsPath = pflag.String("prefs", "", "preference file path")
		verbose   = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, usageText, version)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	path := *prefsPath
	if path == "" {
		var err error
		path, err = prefs.DefaultPath()
		if err != nil {
			log.Fatal().Err(err).Msg("resolve preference path")
		}
	}
	p, err := prefs.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("load preferences")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args, p, credentials(p, *host, *port, *user, *password)); err != nil {
		if client.KindOf(err) == client.KindUnauthorized {
			log.Fatal().Err(err).Msg("not authorized, log in again")
		}
		log.Fatal().Err(err).Msg(args[0])
	}
}

// credentials merges saved preferences with flag and environment overrides,
// flags winning over env winning over the preference file.
func credentials(p *prefs.Prefs, host string, port int, user, password string) client.Credentials {
	creds, _ := p.Credentials()
	if v := os.Getenv("MUSICDL_HOST"); v != "" {
		creds.Host = v
	}
	if v := os.Getenv("MUSICDL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			creds.Port = n
		}
	}
	if v := os.Getenv("MUSICDL_USER"); v != "" {
		creds.Username = v
	}
	if v := os.Getenv("MUSICDL_PASSWORD"); v != "" {
		creds.Password = v
	}
	if host != "" {
		creds.Host = host
	}
	if port != 0 {
		creds.Port = port
	}
	if user != "" {
		creds.Username = user
	}
	if password != "" {
		creds.Password = password
	}
	return creds
}

func run(ctx context.Context, args []string, p *prefs.Prefs, creds client.Credentials) error {
	switch args[0] {
	case "login":
		if len(args) != 5 {
			return fmt.Errorf("usage: login <user> <password> <host> <port>")
		}
		port, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[4])
		}
		creds := client.Credentials{Username: args[1], Password: args[2], Host: args[3], Port: port}
		if err := client.New(creds).Ping(ctx); err != nil {
			return err
		}
		if err := p.SetLoginData(creds.Username, creds.Password, creds.Host, creds.Port); err != nil {
			return err
		}
		fmt.Println("login ok")
		return nil

	case "logout":
		return p.Clear()
	}

	if !creds.Complete() {
		return fmt.Errorf("no saved login, run: musicdl login <user> <password> <host> <port>")
	}
	c := client.New(creds)

	switch args[0] {
	case "sections":
		sections, err := c.Sections(ctx)
		if err != nil {
			return err
		}
		printLines(sections)
		return nil

	case "albums":
		albums, err := c.Albums(ctx)
		if err != nil {
			return err
		}
		printLines(albums)
		return nil

	case "songs":
		if len(args) != 2 {
			return fmt.Errorf("usage: songs <section>")
		}
		songs, err := c.Songs(ctx, args[1])
		if err != nil {
			return err
		}
		for _, song := range songs {
			fmt.Printf("%s\t%s\t%s\n", song.Name, song.Artist, song.Album)
		}
		return nil

	case "request":
		if len(args) != 6 {
			return fmt.Errorf("usage: request <url> <name> <artist> <album> <section>")
		}
		return c.SubmitRequest(ctx, model.DownloadRequest{
			URL: args[1], Name: args[2], Artist: args[3], Album: args[4], Section: args[5],
		})

	case "cancel":
		if len(args) != 4 {
			return fmt.Errorf("usage: cancel <name> <section> <album>")
		}
		return c.CancelRequest(ctx, args[1], args[2], args[3])

	case "status":
		return watchStatus(ctx, c)

	case "sync":
		if len(args) != 3 {
			return fmt.Errorf("usage: sync <section> <dir>")
		}
		return syncSection(ctx, c, args[1], args[2])

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// watchStatus opens the push channel and prints the task table on every
// change until interrupted.
func watchStatus(ctx context.Context, c *client.Client) error {
	store := state.New(c)
	informer := status.New(c, store.ApplyStatus)
	defer func() {
		informer.Stop()
		informer.Join()
	}()

	if err := informer.RequestAll(ctx); err != nil {
		return err
	}

	changes := store.Subscribe()
	defer store.Unsubscribe(changes)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			printStatuses(store.Statuses())
		}
	}
}

func printStatuses(statuses map[model.DownloadRequest]model.TaskStatus) {
	list := make([]model.TaskStatus, 0, len(statuses))
	for _, s := range statuses {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Request.GetDisplayTitle() < list[j].Request.GetDisplayTitle()
	})
	for _, s := range list {
		fmt.Printf("%-40s %-12s %s\n", s.Request.GetDisplayTitle(), s.Status, s.GetPercentString())
	}
	fmt.Println()
}

func syncSection(ctx context.Context, c *client.Client, section, dir string) error {
	prefPath, err := prefs.DefaultPath()
	if err != nil {
		return err
	}
	sy, err := syncer.New(c, filepath.Join(filepath.Dir(prefPath), "sync.db"))
	if err != nil {
		return err
	}
	defer sy.Close()

	return sy.SyncSection(ctx, section, dir, func(p syncer.Progress) {
		if p.Skipped {
			fmt.Printf("[%d/%d] %s (up to date)\n", p.Index+1, p.Total, p.File)
			return
		}
		fmt.Printf("[%d/%d] %s\n", p.Index+1, p.Total, p.File)
	})
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}
