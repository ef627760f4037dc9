package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vncconn/pkg/auth"
	"vncconn/pkg/config"
	"vncconn/pkg/history"
	"vncconn/pkg/presenter"
	"vncconn/pkg/version"
)

const usage = `usage: historyctl [-store backend] <command> [flags]

commands:
  list    print the saved connection history, most recent first
  clear   erase the saved history
  prune   drop duplicate, hostless and excess slots and renumber the rest
  token   mint a subscriber token for a progress hub
  watch   follow a progress hub and print its events
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	storeType := flag.String("store", cfg.Backend, "history store: memory|sqlite|mysql|consul (env VNC_HISTORY_STORE)")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if *showVersion {
		log.Print(version.String("historyctl"))
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := cfg.SetBackend(*storeType); err != nil {
		log.Fatal(err)
	}

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "list":
		runList(cfg)
	case "clear":
		runClear(cfg)
	case "prune":
		runPrune(cfg)
	case "token":
		runToken(cfg, args)
	case "watch":
		runWatch(cfg, args)
	default:
		log.Printf("unknown command %q", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}
}

func runList(cfg config.Config) {
	hist := history.New(cfg.Opener())
	hist.Load()
	if hist.IsEmpty() {
		fmt.Println("history is empty")
		return
	}
	for i, p := range hist.Profiles() {
		var extras []string
		if ps := hist.ProtocolSettings(p); ps != nil {
			extras = append(extras, fmt.Sprintf("encoding=%s", ps.PreferredEncoding))
			if ps.ViewOnly {
				extras = append(extras, "view-only")
			}
		}
		if ui := hist.UiSettings(p); ui != nil {
			extras = append(extras, fmt.Sprintf("scaling=%s", ui.Scaling))
		}
		fmt.Printf("%2d  %-40s %s\n", i, p, strings.Join(extras, " "))
	}
}

func runClear(cfg config.Config) {
	hist := history.New(cfg.Opener())
	hist.Clear()
	log.Printf("history cleared (store=%s)", cfg.Backend)
}

// runPrune relies on Load dropping bad and excess slots; Save renumbers.
func runPrune(cfg config.Config) {
	hist := history.New(cfg.Opener())
	hist.Load()
	hist.Save()
	log.Printf("history pruned: %d entries kept (max %d)", hist.Len(), history.MaxItems)
}

func runToken(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	viewer := fs.String("viewer", "historyctl", "subscriber name embedded in the token")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)

	tok, err := auth.NewSigner(cfg.JWTSecret).Generate(*viewer, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(tok)
}

func runWatch(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "ws://127.0.0.1:7900/events", "progress hub URL")
	token := fs.String("token", "", "subscriber token (minted from JWT_SECRET when empty)")
	_ = fs.Parse(args)

	tok := *token
	if tok == "" {
		var err error
		tok, err = auth.NewSigner(cfg.JWTSecret).Generate("historyctl", time.Hour)
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := presenter.Watch(ctx, *url, tok, func(ev presenter.Event) {
		line := ev.Type
		if ev.Text != "" {
			line += " " + strings.ReplaceAll(ev.Text, "\n", " ")
		}
		if ev.Addr != "" {
			line += " " + ev.Addr
		}
		fmt.Printf("%s %s\n", ev.Time.Format(time.RFC3339), line)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("watch: %v", err)
	}
}
