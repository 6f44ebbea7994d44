package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/testcase-agent/internal/queue"
	"github.com/OFFIS-RIT/testcase-agent/internal/setup"
	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnv("LOG_FORMAT") == "json",
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	deps, err := setup.Build(ctx)
	if err != nil {
		logger.Fatal("Failed to set up services", "err", err)
	}
	defer deps.Close()
	if deps.Redis == nil {
		logger.Warn("REDIS_URL not set, job progress is invisible to the API server")
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.JobQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// jobs handed to this process are executed here, never re-published
	deps.Jobs.SetDispatcher(jobs.DispatcherFunc(func(ctx context.Context, task jobs.Task) error {
		return deps.Jobs.Execute(ctx, task)
	}))

	logger.Info("Listening for messages", "queue", queue.JobQueue)
	if err := queue.Consume(ctx, ch, queue.JobQueue, queue.ExecuteHandler(deps.Jobs)); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
