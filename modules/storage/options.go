package storage

import (
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures the S3 compatible object store. Bound from the "Storage" section.
type Options struct {
	apphost.BaseModuleOptions

	Bucket    string
	AccessKey string
	SecretKey string
	Region    string `default:"us-east-1"`

	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint string

	// PathStyle addresses objects as endpoint/bucket/key. MinIO needs it.
	PathStyle bool

	// PublicURL is the prefix public object URLs are built from, e.g. a CDN.
	PublicURL string

	// URLExpiry is the lifetime of presigned URLs.
	URLExpiry time.Duration `default:"15m"`

	// VerifyBucket checks that the bucket is reachable during Init.
	VerifyBucket bool
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		NotEmpty("Bucket", func(o *Options) string { return o.Bucket }, "is required").
		NotEmpty("AccessKey", func(o *Options) string { return o.AccessKey }, "is required").
		NotEmpty("SecretKey", func(o *Options) string { return o.SecretKey }, "is required").
		NotEmpty("Region", func(o *Options) string { return o.Region }, "is required").
		Rule("URLExpiry", func(o *Options) bool {
			return o.URLExpiry > 0 && o.URLExpiry <= 7*24*time.Hour
		}, "must be positive and at most 7 days"), nil
}
