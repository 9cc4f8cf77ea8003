package gatewayconfig

type ConfigGetter interface {
	GetGateway() Config
}

type Config struct {
	Addr string `yaml:"addr"`
	// ApiURL is the public base of the api server, injected into the page shell
	// for status polling.
	ApiURL        string `yaml:"apiUrl"`
	ServeStatic   bool   `yaml:"serveStatic"`
	AnalyticsCode string `yaml:"analyticsCode"`
}
