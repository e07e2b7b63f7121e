package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// suitable for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices are copied so the redacted value cannot alias the original.
	out.Feed.Symbols = cloneStrings(cfg.Feed.Symbols)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.KafkaBrokers = cloneStrings(cfg.Notify.KafkaBrokers)
	out.Notify.Levels = cloneStrings(cfg.Notify.Levels)
	if cfg.Feed.InitialPrices != nil {
		out.Feed.InitialPrices = append([]float64(nil), cfg.Feed.InitialPrices...)
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
