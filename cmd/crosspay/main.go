package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/crosspay/internal/app"
)

func main() {
	// A .env file is optional; environment variables win either way.
	_ = godotenv.Load()

	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
