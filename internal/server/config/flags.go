package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/signoff/internal/flagx"
)

var knownFlags = []string{
	"-a", "-l", "-d", "-s", "-t", "-k", "-w",
	"-rp-id", "-rp-origins", "-redis", "-smtp",
	"-u", "-p", "-b", "-g", "-e",
	"-log-level", "-log-format",
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          gRPC bind address (e.g., ":50051")
//	-l string          HTTP bind address (e.g., ":8080")
//	-d string          PostgreSQL DSN
//	-s string          access token HMAC secret
//	-t int             access token validity, minutes
//	-k string          challenge HKDF secret
//	-w int             challenge timeout, seconds
//	-rp-id string      WebAuthn relying party id
//	-rp-origins list   comma separated allowed origins
//	-redis string      Redis address
//	-smtp string       SMTP host, empty disables email
//	-u, -p, -b, -g, -e S3 user, password, bucket, region, endpoint
//	-log-level string  debug, info, warn or error
//	-log-format string json or text
//
// os.Args is filtered first with flagx.FilterArgs so flags meant for other
// loaders (-c, -envfile) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.StringVar(&config.ChallengeSecret, "k", config.ChallengeSecret, "challenge secret")
	challengeTimeout := fs.Int("w", int(config.ChallengeTimeout.Seconds()), "challenge timeout (in seconds)")

	fs.StringVar(&config.RPID, "rp-id", config.RPID, "relying party id")
	origins := flagx.StringList(config.RPOrigins)
	fs.Var(&origins, "rp-origins", "relying party origins, comma separated")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.SMTPHost, "smtp", config.SMTPHost, "SMTP host")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 receipts bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (json or text)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// integer flags would truncate finer durations from earlier layers
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		case "w":
			config.ChallengeTimeout = time.Duration(*challengeTimeout) * time.Second
		case "rp-origins":
			config.RPOrigins = origins
		}
	})
}
