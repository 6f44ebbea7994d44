package main

import (
	"github.com/OFFIS-RIT/testcase-agent/internal/server"
	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnv("LOG_FORMAT") == "json",
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}
