package mylog

import (
	"context"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"

	"shopassist/app/config"
)

// TelegramKey marks a record for the Telegram sink regardless of level.
const TelegramKey = "telegram"

func Preinit() {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})))
}

func Init(cfg *config.Config) error {
	level, err := ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	router := slogmulti.Router()

	router = router.Add(console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))

	if cfg.Log.Telegram.Token != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     level,
				Token:     cfg.Log.Telegram.Token,
				Username:  cfg.Log.Telegram.ChatID,
				AddSource: true,
			}.NewTelegramHandler(),
			toTelegram,
		)
	}

	slog.SetDefault(slog.New(router.Handler()))

	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// toTelegram routes errors and records tagged with TelegramKey.
func toTelegram(_ context.Context, r slog.Record) bool {
	hasTelegram := false

	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == TelegramKey {
			hasTelegram = true
			return false
		}

		return true
	})

	return r.Level >= slog.LevelError || hasTelegram
}
