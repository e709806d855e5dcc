package main

import (
	"log/slog"
	"os"

	"paycore/internal/app/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := server.Run(); err != nil {
		slog.Error("paycore server stopped", "err", err)
		os.Exit(1)
	}
}
