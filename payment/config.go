package payment

type configGetter interface {
	GetPayment() Config
}

type Config struct {
	ApiKey        string `yaml:"apiKey"`
	WebhookSecret string `yaml:"webhookSecret"`
	// Per-plan price ids of the payment provider.
	PriceBasic   string `yaml:"priceBasic"`
	PricePremium string `yaml:"pricePremium"`
	// SuccessURL gets the slug appended, landing the buyer on the page that
	// polls for activation.
	SuccessURL     string   `yaml:"successUrl"`
	CancelURL      string   `yaml:"cancelUrl"`
	PaymentMethods []string `yaml:"paymentMethods"`
	// DedupTTLMin is how long processed event ids are remembered when redis is
	// available.
	DedupTTLMin int `yaml:"dedupTtlMin"`
}
