package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"briefplay/api"
	"briefplay/config"
	"briefplay/handlers"
	"briefplay/internal/database"
	"briefplay/services/backend"
	"briefplay/services/downloads"
	"briefplay/services/player"
	"briefplay/services/playlists"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	backendOverride := flag.String("backend", "", "override backend base url from config")
	flag.Parse()

	fmt.Println("briefplay starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("BRIEFPLAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if *backendOverride != "" {
		settings.Backend.BaseURL = *backendOverride
	}

	// Backend client
	backendClient := backend.NewClient(
		settings.Backend.BaseURL,
		settings.Backend.Token,
		time.Duration(settings.Backend.TimeoutSeconds)*time.Second,
	)

	// Local history mirror
	var db *database.DB
	if settings.Database.Path != "" {
		db, err = database.Open(settings.Database.Path)
		if err != nil {
			log.Printf("Warning: local history disabled: %v", err)
			db = nil
		}
	}

	// Downloads store
	downloadsService, err := downloads.NewService(afero.NewOsFs(), settings.Downloads.Directory, nil)
	if err != nil {
		log.Fatalf("failed to init downloads: %v", err)
	}

	// Playlist cache
	playlistsService := playlists.NewService(backendClient, 5*time.Minute)

	// Playback orchestrator
	var mirror player.HistoryMirror
	if db != nil {
		mirror = db
	}
	session := player.NewSessionRecorder(backendClient, mirror, settings.Playback.PositionLogIntervalSeconds)
	engine := player.NewEngine(player.NewClockPlayer)
	playerService := player.NewService(settings.Playback, backendClient, engine, session, downloadsService, playlistsService)
	playerService.Start()

	// Construct router and register API routes
	historyHandler := handlers.NewHistoryHandler(backendClient, nil)
	if db != nil {
		historyHandler = handlers.NewHistoryHandler(backendClient, db)
	}
	r := mux.NewRouter()
	api.Register(
		r,
		settings.Server.APIToken,
		handlers.NewPlayerHandler(playerService),
		handlers.NewDiscoveryHandler(backendClient),
		handlers.NewPlaylistsHandler(playlistsService),
		handlers.NewDownloadsHandler(downloadsService),
		historyHandler,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Flush the open listening session before anything else goes away.
	if err := playerService.Shutdown(shutdownCtx); err != nil {
		log.Printf("Player shutdown error: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
	}

	log.Println("Shutdown complete")
}
