// Package settings loads the saml_* configuration surface from the
// environment or an optional config file and produces the explicit
// immutable saml.Config. Components never read settings themselves.
package settings

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/authbridge/saml"
)

// Keys of the configuration surface.
const (
	KeyBaseURL          = "saml_base_url"
	KeyTargetURL        = "saml_target_url"
	KeyCert             = "saml_cert"
	KeyCertFingerprint  = "saml_cert_fingerprint"
	KeyMetadataURL      = "saml_metadata_url"
	KeySPCertificate    = "saml_sp_certificate"
	KeySPPrivateKey     = "saml_sp_private_key"
	KeyRequestMethod    = "saml_request_method"
	KeyLogAuth          = "saml_log_auth"
	KeyMetadataCacheTTL = "saml_metadata_cache_ttl"
)

// Load reads configuration with environment variables taking precedence
// over an optional samlbridge.{yaml,toml,...} file in the working
// directory, and validates the result.
func Load() (*saml.Config, error) {
	return load(".")
}

func load(path string) (*saml.Config, error) {
	const op = "settings.Load"

	v := viper.New()
	v.SetConfigName("samlbridge")
	v.AddConfigPath(path)

	v.SetDefault(KeyRequestMethod, string(saml.RequestBindingGET))
	v.SetDefault(KeyMetadataCacheTTL, saml.DefaultMetadataCacheTTL)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A config file is optional; only a malformed one is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
		}
	}

	cfg, err := saml.NewConfig(
		v.GetString(KeyBaseURL),
		v.GetString(KeyTargetURL),
		v.GetString(KeyMetadataURL),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Certificate = v.GetString(KeyCert)
	cfg.CertificateFingerprint = v.GetString(KeyCertFingerprint)
	cfg.SPCertificate = v.GetString(KeySPCertificate)
	cfg.SPPrivateKey = v.GetString(KeySPPrivateKey)
	cfg.RequestBinding = saml.RequestBinding(strings.ToLower(v.GetString(KeyRequestMethod)))
	cfg.LogAuth = v.GetBool(KeyLogAuth)

	if ttl := v.GetDuration(KeyMetadataCacheTTL); ttl > 0 {
		cfg.MetadataCacheTTL = ttl
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}
