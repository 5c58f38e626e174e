package config

type StorageConfig struct {
	Provider string              `yaml:"provider"`
	Local    *LocalStorageConfig `yaml:"local"`
	AWS      *AWSStorageConfig   `yaml:"aws"`
	GCP      *GCPStorageConfig   `yaml:"gcp"`
}

type LocalStorageConfig struct {
	BasePath string `yaml:"base_path"`
	BaseURL  string `yaml:"base_url"`
}

type AWSStorageConfig struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CDNDomain       string `yaml:"cdn_domain"`
}

type GCPStorageConfig struct {
	ProjectID       string `yaml:"project_id"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	CDNDomain       string `yaml:"cdn_domain"`
}

func defaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Provider: "local",
		Local: &LocalStorageConfig{
			BasePath: "./receipts",
			BaseURL:  "http://localhost:8080/receipts",
		},
		AWS: &AWSStorageConfig{Region: "us-east-1"},
		GCP: &GCPStorageConfig{},
	}
}

func applyStorageEnv(c *StorageConfig) {
	c.Provider = getEnv("STORAGE_PROVIDER", c.Provider)
	c.Local.BasePath = getEnv("STORAGE_LOCAL_PATH", c.Local.BasePath)
	c.Local.BaseURL = getEnv("STORAGE_LOCAL_URL", c.Local.BaseURL)
	c.AWS.Region = getEnv("AWS_S3_REGION", c.AWS.Region)
	c.AWS.Bucket = getEnv("AWS_S3_BUCKET", c.AWS.Bucket)
	c.AWS.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID)
	c.AWS.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey)
	c.AWS.CDNDomain = getEnv("AWS_CLOUDFRONT_DOMAIN", c.AWS.CDNDomain)
	c.GCP.ProjectID = getEnv("GCP_PROJECT_ID", c.GCP.ProjectID)
	c.GCP.Bucket = getEnv("GCP_STORAGE_BUCKET", c.GCP.Bucket)
	c.GCP.CredentialsFile = getEnv("GCP_CREDENTIALS_FILE", c.GCP.CredentialsFile)
	c.GCP.CDNDomain = getEnv("GCP_CDN_DOMAIN", c.GCP.CDNDomain)
}
