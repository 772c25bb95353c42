package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app"
)

func main() {
	app.NewApp().Run()
}
