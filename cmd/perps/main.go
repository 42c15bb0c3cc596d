package main

import (
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/app"
	"github.com/RabbyHub/perps-engine/internal/cli"
)

func main() {
	fx.New(
		app.Module,
		cli.Module,
	).Run()
}
