package main

import (
	"github.com/vellum-graph/vellum/internal/server"
	"github.com/vellum-graph/vellum/internal/util"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
