package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string
	FaceKeyPrefix  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	OTPLength         int
	OTPMaxAttempts    int
	OTPTTL            time.Duration
	VoteTokenTTL      time.Duration
	SignedRefCacheTTL time.Duration
	SignedURLGrantTTL time.Duration

	FaceMaxBytes     int64
	FaceMaxDimension int
	FaceMaxPixels    int

	// Per-identity throttle on OTP issue, OTP verify and login.
	IdentityRateInterval time.Duration
	IdentityRateBurst    int

	AdminIdentities []string
	AllowedOrigins  []string // CORS allowed origins
	TrustedProxies  []string // IPs or CIDRs whose X-Forwarded-For is honoured
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users   string
	Targets string
	Ballots string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:   getEnv("DYNAMO_TABLE_USERS", "users"),
			Targets: getEnv("DYNAMO_TABLE_TARGETS", "targets"),
			Ballots: getEnv("DYNAMO_TABLE_BALLOTS", "ballots"),
		},
		S3BucketName:  getEnv("S3_BUCKET_NAME", "face-references"),
		FaceKeyPrefix: getEnv("FACE_KEY_PREFIX", "faces"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),

		OTPLength:         getEnvInt("OTP_LENGTH", 6),
		OTPMaxAttempts:    getEnvInt("OTP_MAX_ATTEMPTS", 5),
		OTPTTL:            getEnvDuration("OTP_TTL", 180*time.Second),
		VoteTokenTTL:      getEnvDuration("VOTE_TOKEN_TTL", 5*time.Minute),
		SignedRefCacheTTL: getEnvDuration("SIGNED_REF_CACHE_TTL", time.Hour),
		SignedURLGrantTTL: getEnvDuration("SIGNED_URL_GRANT_TTL", time.Hour),

		FaceMaxBytes:     int64(getEnvInt("FACE_MAX_BYTES", 5<<20)),
		FaceMaxDimension: getEnvInt("FACE_MAX_DIMENSION", 1024),
		FaceMaxPixels:    getEnvInt("FACE_MAX_PIXELS", 24_000_000),

		IdentityRateInterval: getEnvDuration("IDENTITY_RATE_INTERVAL", 20*time.Second),
		IdentityRateBurst:    getEnvInt("IDENTITY_RATE_BURST", 5),

		AdminIdentities: splitList(getEnv("ADMIN_IDENTITIES", "")),
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustedProxies:  splitList(getEnv("TRUSTED_PROXIES", "")),
	}
}

// Validate checks the TTL ordering the lifecycles depend on:
// OTP < vote token < signed-reference cache <= signed URL grant.
func (c *Config) Validate() error {
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTPLength)
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.OTPTTL >= c.VoteTokenTTL {
		return fmt.Errorf("OTP_TTL (%s) must be shorter than VOTE_TOKEN_TTL (%s)", c.OTPTTL, c.VoteTokenTTL)
	}
	if c.VoteTokenTTL >= c.SignedRefCacheTTL {
		return fmt.Errorf("VOTE_TOKEN_TTL (%s) must be shorter than SIGNED_REF_CACHE_TTL (%s)", c.VoteTokenTTL, c.SignedRefCacheTTL)
	}
	if c.SignedRefCacheTTL > c.SignedURLGrantTTL {
		return fmt.Errorf("SIGNED_REF_CACHE_TTL (%s) must not exceed SIGNED_URL_GRANT_TTL (%s)", c.SignedRefCacheTTL, c.SignedURLGrantTTL)
	}
	if c.FaceMaxPixels <= 0 {
		return fmt.Errorf("FACE_MAX_PIXELS must be positive")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyNets parses TrustedProxies. A bare IP is a single-host network.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid entry %q", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
