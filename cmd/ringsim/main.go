package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ringsim/internal/config"
	"ringsim/internal/server"
	"ringsim/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration (default: built-in defaults)")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	clientDir := flag.String("client", "", "Directory of static viewer files (optional)")
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		conf, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	} else if err := conf.Validate(); err != nil {
		log.Fatalf("default config: %v", err)
	}
	if *addr != "" {
		conf.Server.Addr = *addr
	}

	var db *store.DB
	if conf.Server.DBPath != "" {
		var err error
		db, err = store.OpenDB(conf.Server.DBPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		log.Printf("Database opened at %s", conf.Server.DBPath)
	}
	rec := store.NewRecorder(db)

	sim, err := server.NewSim(conf)
	if err != nil {
		log.Fatalf("create simulation: %v", err)
	}
	log.Printf("Simulating %d %s entities (%s boundary)", sim.Active(), conf.Solver.System, conf.Solver.Boundary)

	auth, err := server.NewAuth(db, conf.Server.OperatorUser, conf.Server.OperatorPassword)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	runner := server.NewRunner(sim, conf, rec, db)
	hub := server.NewHub(runner, auth, db)
	go hub.Run()
	go runner.Run()

	mux := server.SetupRoutes(hub, *clientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{Addr: conf.Server.Addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", conf.Server.Addr)
		if *clientDir != "" {
			log.Printf("Serving client files from %s", *clientDir)
		}
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	runner.Stop()
	srv.Close()
	rec.Stop()
}
