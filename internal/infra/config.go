package infra

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string

	StoragePath       string
	StorageBackend    string
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3Region          string
	S3UseSSL          bool
	ArtifactRetention time.Duration
	ReaperSchedule    string
	DownloadTokenTTL  time.Duration

	ReplicateAPIToken      string
	ReplicateBaseURL       string
	ReplicateModelVersion  string
	GenerationPollInterval time.Duration
	GenerationMaxAttempts  int

	StripeSecretKey    string
	StripeAPIURL       string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	CatalogCancelURL   string
	PageUnitPriceCents int64
	CheckoutCurrency   string

	AirtableAPIKey  string
	AirtableBaseID  string
	AirtableTable   string
	AirtableBaseURL string

	ImageSourceAllowlist  []string
	CORSAllowedOrigins    []string
	TrustedProxies        []netip.Prefix
	GenerateRatePerMinute int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. When CONFIG_FILE names a YAML file its keys are
// applied first; real environment variables always win.
func LoadConfig() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyConfigFile(path); err != nil {
			return nil, err
		}
	}

	port := getEnv("PORT", "5000")
	publicBase := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		PublicBaseURL: publicBase,

		StoragePath:       getEnv("STORAGE_PATH", "./tmp_images"),
		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", "fs")),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          getEnv("S3_BUCKET", "customcolors-artifacts"),
		S3Region:          os.Getenv("S3_REGION"),
		S3UseSSL:          getEnvBool("S3_USE_SSL", true),
		ArtifactRetention: getEnvDuration("ARTIFACT_RETENTION", time.Hour),
		ReaperSchedule:    getEnv("REAPER_SCHEDULE", "*/30 * * * *"),
		DownloadTokenTTL:  getEnvDuration("DOWNLOAD_TOKEN_TTL", 10*time.Minute),

		ReplicateAPIToken:      os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:       getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModelVersion:  getEnv("REPLICATE_MODEL_VERSION", "adams38/red_page_ai:01bc6fbe2bc89772101c97c7363a59329b75ed9354aa6ed3024f05f08a692d43"),
		GenerationPollInterval: getEnvDuration("GENERATION_POLL_INTERVAL", 2*time.Second),
		GenerationMaxAttempts:  getEnvInt("GENERATION_MAX_ATTEMPTS", 15),

		StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
		StripeAPIURL:       os.Getenv("STRIPE_API_URL"),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "https://www.customcolors.store/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "https://www.customcolors.store"),
		CatalogCancelURL:   getEnv("CATALOG_CANCEL_URL", "https://www.customcolors.store/cancel"),
		PageUnitPriceCents: int64(getEnvInt("PAGE_UNIT_PRICE_CENTS", 199)),
		CheckoutCurrency:   strings.ToLower(getEnv("CHECKOUT_CURRENCY", "usd")),

		AirtableAPIKey:  os.Getenv("AIRTABLE_API_KEY"),
		AirtableBaseID:  os.Getenv("AIRTABLE_BASE_ID"),
		AirtableTable:   getEnv("AIRTABLE_TABLE", "Coloring Book Pages"),
		AirtableBaseURL: getEnv("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),

		CORSAllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		GenerateRatePerMinute: getEnvInt("GENERATE_RATE_PER_MINUTE", 10),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
	cfg.ImageSourceAllowlist = mergeAllowlist(publicBase, splitList(os.Getenv("IMAGE_SOURCE_HOST_ALLOWLIST")))
	proxies, err := parsePrefixes(splitList(os.Getenv("TRUSTED_PROXIES")))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants. A download token must never outlive
// the artifact it points at, so the token window may not exceed retention.
func (c *Config) Validate() error {
	var errs []error
	if c.ArtifactRetention <= 0 {
		errs = append(errs, errors.New("ARTIFACT_RETENTION must be positive"))
	}
	if c.DownloadTokenTTL <= 0 {
		errs = append(errs, errors.New("DOWNLOAD_TOKEN_TTL must be positive"))
	}
	if c.DownloadTokenTTL > c.ArtifactRetention {
		errs = append(errs, fmt.Errorf("DOWNLOAD_TOKEN_TTL (%s) must not exceed ARTIFACT_RETENTION (%s)", c.DownloadTokenTTL, c.ArtifactRetention))
	}
	if c.GenerationPollInterval <= 0 {
		errs = append(errs, errors.New("GENERATION_POLL_INTERVAL must be positive"))
	}
	if c.GenerationMaxAttempts <= 0 {
		errs = append(errs, errors.New("GENERATION_MAX_ATTEMPTS must be positive"))
	}
	if c.PageUnitPriceCents <= 0 {
		errs = append(errs, errors.New("PAGE_UNIT_PRICE_CENTS must be positive"))
	}
	switch c.StorageBackend {
	case "fs":
		if strings.TrimSpace(c.StoragePath) == "" {
			errs = append(errs, errors.New("STORAGE_PATH is required"))
		}
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_ENDPOINT and S3_BUCKET are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

// applyConfigFile exports keys from a flat YAML map into the environment
// unless the variable is already set.
func applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	for key, raw := range values {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(raw)); err != nil {
			return fmt.Errorf("apply config key %s: %w", key, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePrefixes accepts CIDRs or bare addresses.
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// mergeAllowlist returns the sorted, de-duplicated hosts page images may be
// fetched from. The public base host is always included.
func mergeAllowlist(publicBase string, extra []string) []string {
	seen := map[string]struct{}{}
	if u, err := url.Parse(publicBase); err == nil && u.Hostname() != "" {
		seen[strings.ToLower(u.Hostname())] = struct{}{}
	}
	for _, host := range extra {
		seen[strings.ToLower(host)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}
