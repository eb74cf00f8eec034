package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/marker-labs/marker-back/internal/config"
	"github.com/marker-labs/marker-back/internal/db"
	"github.com/marker-labs/marker-back/internal/service"
	"github.com/marker-labs/marker-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			NewLogger,
			db.NewGormClient,
			service.NewAuth,
			service.NewBookmark,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(*transport.HTTPServer) {}),
	)

	app.Run()
}

func NewLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
