package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
)

func main() {
	fmt.Println("🔍 Checking configuration...")

	// Load .env if present
	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  .env file not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Configuration is invalid:\n%v\n", err)
		os.Exit(1)
	}

	loc, _ := cfg.Location()
	registry, err := rules.NewRegistry(cfg.Rules, loc)
	if err != nil {
		fmt.Printf("❌ Rules are invalid:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Configuration is valid!")
	fmt.Printf("📋 Configuration details:\n")
	fmt.Printf("  - Telegram Token: %s\n", maskToken(cfg.TelegramToken))
	fmt.Printf("  - Alert Chat ID: %s\n", orUnset(cfg.AlertChatID))
	fmt.Printf("  - Display Timezone: %s\n", cfg.DisplayTimezone)
	fmt.Printf("  - DB Driver: %s\n", cfg.DB.Driver)
	if cfg.DB.Driver == config.DriverSQLite {
		fmt.Printf("  - SQLite Path: %s\n", cfg.DB.SQLitePath)
	} else {
		fmt.Printf("  - DB Host: %s\n", cfg.DB.Host)
		fmt.Printf("  - DB Port: %s\n", cfg.DB.Port)
		fmt.Printf("  - DB User: %s\n", cfg.DB.User)
		fmt.Printf("  - DB Password: %s\n", maskToken(cfg.DB.Password))
		fmt.Printf("  - DB Name: %s\n", cfg.DB.DBName)
	}
	fmt.Printf("  - Dispatch Channel: %s (timeout %s)\n", cfg.Dispatch.Channel, cfg.Dispatch.Timeout)
	if cfg.Dispatch.Channel == config.ChannelNATS {
		fmt.Printf("  - NATS: %s -> %s\n", cfg.Dispatch.NATSURL, cfg.Dispatch.NATSSubject)
	}
	if err := cfg.ValidateDispatch(); err != nil {
		fmt.Printf("⚠️  Alert runs will fail until the dispatch channel is configured:\n%v\n", err)
	}
	fmt.Printf("  - Redis Lock: %s\n", redisTarget(cfg.Redis))
	fmt.Printf("  - Pushgateway: %s\n", orUnset(cfg.Metrics.PushgatewayURL))
	fmt.Printf("  - Retry Failed Sends: %v\n", cfg.Engine.RetryFailedSends)
	fmt.Printf("  - Read Timeout: %s\n", cfg.Engine.ReadTimeout)
	fmt.Printf("  - Rules File: %s\n", orUnset(cfg.RulesFile))
	fmt.Printf("  - Log Level: %v\n", cfg.Logger.Level)
	fmt.Printf("  - Log Output: %s\n", cfg.Logger.OutputPath)
	fmt.Printf("  - Log Format: %s\n", cfg.Logger.Format)

	fmt.Printf("📏 Rules:\n")
	for _, rule := range registry.All() {
		mode := "auto"
		if rule.ManualOnly() {
			mode = "manual"
		}
		fmt.Printf("  - %s: cooldown %s, %s\n", rule.Name(), rule.Cooldown(), mode)
	}

	for _, w := range cfg.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
}

func maskToken(token string) string {
	if token == "" {
		return "<not set>"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func orUnset(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

func redisTarget(r config.RedisConfig) string {
	if !r.Enabled() {
		return "disabled"
	}
	return r.Host + ":" + r.Port
}
