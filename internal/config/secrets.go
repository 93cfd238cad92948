package config

// redacted replaces a non-empty secret with a placeholder for logging.
func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

// Redacted returns a copy of the config safe for structured logging: all
// credential fields are masked, everything else is preserved.
func (c Config) Redacted() Config {
	out := c
	out.Postgres.DSN = redacted(c.Postgres.DSN)
	out.Postgres.Password = redacted(c.Postgres.Password)
	out.Redis.Password = redacted(c.Redis.Password)
	out.S3.AccessKey = redacted(c.S3.AccessKey)
	out.S3.SecretKey = redacted(c.S3.SecretKey)
	out.Server.AdminAPIKey = redacted(c.Server.AdminAPIKey)
	out.Notify.TelegramToken = redacted(c.Notify.TelegramToken)
	out.Notify.DiscordWebhookURL = redacted(c.Notify.DiscordWebhookURL)
	return out
}
