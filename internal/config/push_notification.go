package config

type PushConfig struct {
	Provider string     `yaml:"provider"` // fcm, none
	FCM      *FCMConfig `yaml:"fcm"`
}

type FCMConfig struct {
	ProjectID   string `yaml:"project_id"`
	Credentials string `yaml:"credentials_file"`
}

func defaultPushConfig() *PushConfig {
	return &PushConfig{
		Provider: "none",
		FCM:      &FCMConfig{},
	}
}

func applyPushEnv(c *PushConfig) {
	c.Provider = getEnv("PUSH_PROVIDER", c.Provider)
	c.FCM.ProjectID = getEnv("FCM_PROJECT_ID", c.FCM.ProjectID)
	c.FCM.Credentials = getEnv("FCM_CREDENTIALS_FILE", c.FCM.Credentials)
}
