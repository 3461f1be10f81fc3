package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/cytoguard/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-m string     metrics bind address, empty disables
//	-d string     PostgreSQL DSN for the audit trail
//	-w string     base directory for session stores
//	-x duration   session idle timeout (e.g., "2h")
//	-i duration   expiry sweep interval
//	-l int        maximum upload size in bytes
//	-k int        PBKDF2 iterations
//	-M string     model server URL
//	-T duration   model request timeout
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket for report archiving, empty disables
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-v string     log level
//	-f string     log format, "json" or "text"
//
// os.Args is first filtered with flagx.FilterArgs so that flags owned by
// other components (-c/-config) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-w", "-x", "-i", "-l", "-k", "-M", "-T",
		"-u", "-p", "-b", "-g", "-e", "-v", "-f",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for /metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.TempBaseDir, "w", config.TempBaseDir, "base directory for session stores")

	fs.DurationVar(&config.SessionTimeout, "x", config.SessionTimeout, "session idle timeout")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "expired session sweep interval")
	fs.Int64Var(&config.MaxUploadBytes, "l", config.MaxUploadBytes, "maximum upload size in bytes")
	fs.IntVar(&config.KDFIterations, "k", config.KDFIterations, "PBKDF2 iterations")

	fs.StringVar(&config.ModelURL, "M", config.ModelURL, "model server URL")
	fs.DurationVar(&config.ModelTimeout, "T", config.ModelTimeout, "model request timeout")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 report bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format (json, text)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
