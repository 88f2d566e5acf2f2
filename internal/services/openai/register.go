package openai

import (
	"context"

	"nator/internal/providers"
)

// Register adds the openai script provider to reg.
func Register(reg *providers.Registry) {
	reg.RegisterScripter(Name, func(ctx context.Context, env providers.Env) (providers.Scripter, error) {
		var cfg Config
		if env.Config != nil {
			cfg = Config{
				APIKey:         env.Config.OpenAI.APIKey,
				BaseURL:        env.Config.OpenAI.BaseURL,
				Model:          env.Config.OpenAI.Model,
				TimeoutSeconds: env.Config.OpenAI.TimeoutSeconds,
				Temperature:    env.Config.OpenAI.Temperature,
			}
		}
		var err error
		if cfg.APIKey, err = env.Setting(ctx, "openai.api_key", cfg.APIKey); err != nil {
			return nil, err
		}
		if cfg.Model, err = env.Setting(ctx, "openai.model", cfg.Model); err != nil {
			return nil, err
		}
		if cfg.BaseURL, err = env.Setting(ctx, "openai.base_url", cfg.BaseURL); err != nil {
			return nil, err
		}
		client, err := NewClient(cfg, WithLogger(env.Logger))
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}
