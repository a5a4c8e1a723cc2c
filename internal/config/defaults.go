package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Platforms: PlatformsConfig{
			Telegram: PlatformConfig{
				Enabled: true,
				APIBase: "https://api.telegram.org",
			},
			Bale: PlatformConfig{
				Enabled: true,
				APIBase: "https://tapi.bale.ai",
			},
		},
		AI: AIConfig{
			CloudBase:          "http://localhost:11434",
			IdleTimeoutSeconds: 50,
		},
		Store: StoreConfig{
			DBPath:                 "~/.botrelay/relay.db",
			CredentialCacheSeconds: 30,
		},
		Relay: RelayConfig{
			MaxConcurrentUpdates: 16,
			FlushThreshold:       1000,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
