package logger

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// RequestLogger returns a fiber middleware that attaches the logger to the
// request context and logs every call with method, path, status and duration.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()

		ctx := logger.With().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Logger().WithContext(c.Context())
		c.SetContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		event := zerolog.Ctx(c.Context()).Info()
		if err != nil || status >= fiber.StatusInternalServerError {
			event = zerolog.Ctx(c.Context()).Error().Err(err)
		}

		event.
			Int("status", status).
			Dur("duration", time.Since(started)).
			Msg("http request")

		return err
	}
}
