package store

type configSource interface {
	GetS3Store() Config
}

type Credentials struct {
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

type Config struct {
	Region      string      `yaml:"region"`
	Bucket      string      `yaml:"bucket"`
	Credentials Credentials `yaml:"credentials"`
	// Endpoint points the client at an S3-compatible provider (e.g. an R2
	// account endpoint); empty means plain AWS.
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"forcePathStyle"`
	// Some S3-compatible providers compute the V4 signature without the
	// Accept-Encoding header; this re-signs every request accordingly.
	RecalculateV4Signature bool `yaml:"recalculateV4Signature"`
}
