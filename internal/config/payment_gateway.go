package config

type PaymentConfig struct {
	Provider string        `yaml:"provider"` // stripe, none
	Stripe   *StripeConfig `yaml:"stripe"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func defaultPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		Provider: "none",
		Stripe:   &StripeConfig{},
	}
}

func applyPaymentEnv(c *PaymentConfig) {
	c.Provider = getEnv("PAYMENT_PROVIDER", c.Provider)
	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
}
