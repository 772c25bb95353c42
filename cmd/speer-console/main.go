package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/syncpeer/cmd/speer-console/app"
)

func main() {
	app.NewApp().Run()
}
