package store_test

import (
	"context"
	"log/slog"
)

type staticFetcher string

func (f staticFetcher) FetchProfile(context.Context, string) ([]byte, error) {
	return []byte(f), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
