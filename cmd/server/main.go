package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"

	"github.com/jomafilms/openclaw-multitenant/accounts/repofakes"
	"github.com/jomafilms/openclaw-multitenant/agent"
	"github.com/jomafilms/openclaw-multitenant/audit"
	"github.com/jomafilms/openclaw-multitenant/flow"
	"github.com/jomafilms/openclaw-multitenant/flow/flowrepo"
	"github.com/jomafilms/openclaw-multitenant/internal/config"
	"github.com/jomafilms/openclaw-multitenant/internal/logger"
	"github.com/jomafilms/openclaw-multitenant/server"
	"github.com/jomafilms/openclaw-multitenant/vault"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	zl := logger.Setup(c.GetEnv() == "DEV")
	displayAppname(c.GetAppName())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	defer func() { _ = redisClient.Close() }()

	memoryRepo := flowrepo.NewInMemoryRepo()
	memoryRepo.StartSweeper(c.GetSweepInterval())
	defer memoryRepo.Stop()

	records := flowrepo.NewFallbackRepo(
		flowrepo.NewRedisRepo(redisClient, c.GetProbeTimeout()),
		memoryRepo,
	)

	sessions := vault.NewRegistry(vault.WithSessionTTL(c.GetSessionTTL()))
	sessions.StartReaper(c.GetReaperInterval())
	defer sessions.Stop()

	agentClient, err := agent.NewClient(
		c.GetAgentBaseURL(),
		c.GetAgentServiceToken(),
		agent.WithTimeouts(c.GetAgentStatusTimeout(), c.GetAgentExchangeTimeout()),
	)
	if err != nil {
		return fmt.Errorf("agent.NewClient: %w", err)
	}

	auditSink := audit.NewZerologSink(zl)

	// The relational account store belongs to the management backend;
	// until this process is wired to it, linked-account metadata is
	// held in memory.
	flows, err := flow.NewManager(flow.Deps{
		Records:  records,
		Sessions: sessions,
		Agent:    agentClient,
		Accounts: repofakes.NewFakeAccountRepo(),
		Audit:    auditSink,
		Config:   c,
	})
	if err != nil {
		return fmt.Errorf("flow.NewManager: %w", err)
	}

	handler, err := server.New(c, flows, sessions, agentClient, auditSink)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
