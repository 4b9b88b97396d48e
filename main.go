package main

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-requests/config"
	"github.com/cufee/botto-requests/database"
	"github.com/cufee/botto-requests/handlers"
	"github.com/cufee/botto-requests/requests"
	"github.com/cufee/botto-requests/roles"
	"github.com/cufee/botto-requests/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Bot] failed to load config: %v", err)
	}

	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[Bot] failed to open database: %v", err)
	}
	defer store.Close()

	ses, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		log.Fatalf("[Bot] failed to create session: %v", err)
	}

	registry := roles.NewRegistry(store)
	manager := requests.NewManager(store, handlers.NewNotifier(ses), requests.Options{
		TTL:           cfg.RequestTTL,
		RateLimitMax:  cfg.RateLimitMax,
		RetainExpired: cfg.RetainExpired,
	})

	h := handlers.New(registry, manager)
	router := exrouter.New()
	h.Register(router)

	ses.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		router.FindAndExecute(s, cfg.Prefix, s.State.User.ID, m.Message)
	})
	ses.AddHandler(h.ReactionAdd)
	ses.AddHandler(h.GuildDelete)

	// The expiry sweep waits for the first Ready before ticking
	ready := make(chan struct{})
	var once sync.Once
	ses.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		once.Do(func() { close(ready) })
		log.Print("[Bot] connection ready")
	})

	if err := ses.Open(); err != nil {
		log.Fatalf("[Bot] failed to open connection: %v", err)
	}
	defer ses.Close()

	sweep := scheduler.New(cfg.SweepPeriod, manager)
	sweep.Start(ready)
	defer sweep.Stop()

	log.Print("[Bot] running, press ctrl+c to exit")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	log.Print("[Bot] shutting down")
}
