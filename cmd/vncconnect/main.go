package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vncconn/pkg/auth"
	"vncconn/pkg/config"
	"vncconn/pkg/dialer"
	"vncconn/pkg/history"
	"vncconn/pkg/model"
	"vncconn/pkg/presenter"
	"vncconn/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	showVersion := flag.Bool("v", false, "print version and exit")
	storeType := flag.String("store", cfg.Backend, "history store: memory|sqlite|mysql|consul (env VNC_HISTORY_STORE)")
	secure := flag.Bool("ssl", false, "wrap the connection in TLS")
	timeout := flag.Duration("timeout", cfg.DialTimeout, "TCP connect timeout (env DIAL_TIMEOUT)")
	caFile := flag.String("ca", cfg.CAFile, "CA file for TLS servers (env CA_FILE)")
	clientCert := flag.String("cert", "", "client TLS certificate (for mTLS)")
	clientKey := flag.String("key", "", "client TLS key (for mTLS)")
	insecure := flag.Bool("insecure", false, "skip TLS verify (not recommended)")
	hubAddr := flag.String("hub-addr", "", "if set, publish dial progress over websocket at this address (path /events)")
	hubCert := flag.String("hub-tls-cert", "", "TLS cert for the progress hub")
	hubKey := flag.String("hub-tls-key", "", "TLS key for the progress hub")
	hubClientCA := flag.String("hub-client-ca", "", "require hub client certs signed by this CA (optional)")
	linger := flag.Duration("linger", 0, "keep the hub up this long after the dial finishes")
	noSave := flag.Bool("no-save", false, "do not record a successful connection in the history")
	flag.Parse()

	if *showVersion {
		log.Print(version.String("vncconnect"))
		return
	}
	if err := cfg.SetBackend(*storeType); err != nil {
		log.Fatal(err)
	}

	hist := history.New(cfg.Opener())
	hist.Load()

	var candidate *model.Profile
	if flag.NArg() > 0 {
		p, err := model.ParseProfile(flag.Arg(0))
		if err != nil {
			log.Fatalf("parse address: %v", err)
		}
		candidate = &p
	}
	suitable, ok := hist.MostSuitable(candidate)
	if !ok {
		log.Fatal("no address given and the history is empty")
	}
	target := suitable
	if candidate != nil {
		target = *candidate
	}
	if target.UseSSH {
		log.Printf("profile %s asks for an ssh tunnel; dialing the host directly", target)
	}
	proto := hist.ProtocolSettings(suitable).Clone()
	if proto == nil {
		proto = model.DefaultProtocolSettings()
	}
	ui := hist.UiSettings(suitable).Clone()
	if ui == nil {
		ui = model.DefaultUiSettings()
	}

	connected := false
	logPresenter := &presenter.Log{
		OnConnected: func(conn net.Conn) {
			connected = true
			log.Printf("session ready local=%s remote=%s", conn.LocalAddr(), conn.RemoteAddr())
			_ = conn.Close()
		},
	}
	var p dialer.Presenter = logPresenter
	var hubSrv *http.Server
	if *hubAddr != "" {
		hub := presenter.NewHub(logPresenter, auth.NewSigner(cfg.JWTSecret))
		defer hub.Close()
		hubSrv = serveHub(hub, *hubAddr, *hubCert, *hubKey, *hubClientCA)
		p = hub
	}

	opts := []dialer.Option{dialer.WithTimeout(*timeout)}
	if *secure {
		tlsCfg, err := dialer.ClientTLSConfig(*caFile, *clientCert, *clientKey, *insecure)
		if err != nil {
			log.Fatalf("tls config: %v", err)
		}
		opts = append(opts, dialer.WithTLSConfig(tlsCfg))
	}
	q := dialer.NewQueue()
	opts = append(opts, dialer.WithExecutor(q.Post))
	d := dialer.New(p, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := d.Start(ctx, target, *secure); err != nil {
		log.Fatalf("dial: %v", err)
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	go func() {
		<-d.Done()
		cancelLoop()
	}()
	_ = q.Run(loopCtx)
	q.RunPending()

	if connected && !*noSave {
		hist.Reorder(target, proto, ui)
		hist.Save()
	}
	if hubSrv != nil {
		if *linger > 0 {
			time.Sleep(*linger)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = hubSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if !connected {
		os.Exit(1)
	}
}

func serveHub(hub *presenter.Hub, addr, certFile, keyFile, clientCA string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if certFile != "" && keyFile != "" {
		tlsCfg, err := presenter.ServerTLSConfig(certFile, keyFile, clientCA)
		if err != nil {
			log.Fatalf("hub tls config: %v", err)
		}
		srv.TLSConfig = tlsCfg
		go func() {
			log.Printf("progress hub listening on %s (https)", addr)
			if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Printf("progress hub stopped: %v", err)
			}
		}()
		return srv
	}
	go func() {
		log.Printf("progress hub listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("progress hub stopped: %v", err)
		}
	}()
	return srv
}
