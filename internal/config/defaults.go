package config

const (
	defaultConfigPath           = "~/.config/nator/config.toml"
	defaultEnvFile              = ".env.local"
	defaultDataDir              = "~/.local/share/nator"
	defaultPublishMode          = PublishModeDry
	defaultMaxPostsPerDay       = 3
	defaultEngine               = "alt"
	defaultTimezone             = "UTC"
	defaultCron                 = "0 9-11 * * 1-5"
	defaultPollInterval         = 30
	defaultProvider             = "mock"
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAITimeout        = 60
	defaultOpenAITemperature    = 0.8
	defaultVoice                = "en-US-JennyNeural"
	defaultEdgeTTSBinary        = "edge-tts"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultRenderMaxSeconds     = 60
	defaultRenderWidth          = 1080
	defaultRenderHeight         = 1920
	defaultTunnelPort           = 8787
	defaultTunnelTimeout        = 300
	defaultCloudflaredBinary    = "cloudflared"
	defaultGraphBaseURL         = "https://graph.facebook.com/v21.0"
	defaultPublishPollInterval  = 5
	defaultPublishPollTimeout   = 120
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Publish modes accepted by pipeline.publish_mode.
const (
	PublishModeDry  = "dry"
	PublishModeLive = "live"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Pipeline: Pipeline{
			PublishMode:        defaultPublishMode,
			MaxPostsPerDay:     defaultMaxPostsPerDay,
			Engine:             defaultEngine,
			DuplicateDetection: true,
		},
		Scheduler: Scheduler{
			Enabled:      false,
			Timezone:     defaultTimezone,
			Cron:         defaultCron,
			PollInterval: defaultPollInterval,
		},
		Providers: Providers{
			Script:    defaultProvider,
			TTS:       defaultProvider,
			Renderer:  defaultProvider,
			Storage:   defaultProvider,
			Publisher: defaultProvider,
		},
		OpenAI: OpenAI{
			Model:          defaultOpenAIModel,
			TimeoutSeconds: defaultOpenAITimeout,
			Temperature:    defaultOpenAITemperature,
		},
		TTS: TTS{
			Voice:  defaultVoice,
			Binary: defaultEdgeTTSBinary,
		},
		Render: Render{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			MaxSeconds:    defaultRenderMaxSeconds,
			Width:         defaultRenderWidth,
			Height:        defaultRenderHeight,
		},
		Tunnel: Tunnel{
			Enabled:     true,
			Port:        defaultTunnelPort,
			TimeoutSecs: defaultTunnelTimeout,
			Binary:      defaultCloudflaredBinary,
		},
		Instagram: Instagram{
			GraphBaseURL:        defaultGraphBaseURL,
			PollIntervalSeconds: defaultPublishPollInterval,
			PollTimeoutSeconds:  defaultPublishPollTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Safety:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
