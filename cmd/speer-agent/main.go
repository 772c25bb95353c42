package main

import (
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/syncpeer/cmd/speer-agent/app"
)

func main() {
	// A missing .env file is not an error; the environment may be set already.
	_ = godotenv.Load()

	app.NewApp().Run()
}
