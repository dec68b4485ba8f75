// Package cli defines the kong command structs for npmmirror, mirroring
// depot's cmd/depot/main.go conventions: a top-level CLI struct embedding
// shared Globals, one struct per subcommand with help/default/env struct
// tags, and an embedded S3Flags struct reusing depot's own S3 flag shape
// for the output tree.
package cli

// Globals carries flags shared by every subcommand, matching depot's
// cmd/globals.Globals.
type Globals struct {
	Verbose bool `help:"Enable verbose logging" default:"false" env:"NPMMIRROR_VERBOSE"`
}

// CLI is the root kong command set.
type CLI struct {
	Globals
	Mirror MirrorCmd `cmd:"" help:"Mirror npm packages into a local or S3-backed output tree"`
}

// S3Flags is the S3 backend's configuration, field-for-field identical to
// depot's own S3Flags so the two tools share an env/flag vocabulary.
type S3Flags struct {
	Bucket          string `help:"S3 bucket name (required when storage-type=s3)" env:"NPMMIRROR_S3_BUCKET"`
	Region          string `help:"S3 region" default:"us-east-1" env:"NPMMIRROR_S3_REGION"`
	Endpoint        string `help:"S3 endpoint URL (for MinIO/custom endpoints)" env:"NPMMIRROR_S3_ENDPOINT"`
	AccessKeyID     string `help:"S3 access key ID (uses IAM role if not set)" env:"NPMMIRROR_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"S3 secret access key (uses IAM role if not set)" env:"NPMMIRROR_S3_SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `help:"Use path-style S3 URLs (required for MinIO)" env:"NPMMIRROR_S3_FORCE_PATH_STYLE"`
}

// MirrorCmd is the sole subcommand: run the three-phase mirror once and
// exit. Field names and defaults follow §6's CLI option table exactly.
type MirrorCmd struct {
	ManifestsPath string `help:"Root of the recursive walk for input manifest files" default:"./manifests" env:"NPMMIRROR_MANIFESTS_PATH"`
	Output        string `help:"Root of the mirror tree (local path, or key prefix when storage-type=s3)" default:"./output" env:"NPMMIRROR_OUTPUT"`
	DLThreads     int    `help:"Number of concurrent download workers" default:"8" env:"NPMMIRROR_DL_THREADS"`
	RegistryURL   string `help:"Base URL of the upstream registry" default:"https://registry.npmjs.org" env:"NPMMIRROR_REGISTRY_URL"`
	Greedy        bool   `help:"Version selection: fetch every satisfying version instead of the max-satisfying one per range" default:"false" env:"NPMMIRROR_GREEDY"`

	NoOptionalDeps bool `help:"Omit optionalDependencies from the index projection" default:"false" env:"NPMMIRROR_NO_OPTIONAL_DEPS"`
	NoDevDeps      bool `help:"Omit devDependencies from the index projection" default:"false" env:"NPMMIRROR_NO_DEV_DEPS"`
	NoPeerDeps     bool `help:"Omit peerDependencies from the index projection" default:"false" env:"NPMMIRROR_NO_PEER_DEPS"`

	DatabaseType string `help:"Run-history ledger backend (sqlite, rqlite or postgres)" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"NPMMIRROR_DATABASE_TYPE"`
	DatabaseURL  string `help:"Ledger database connection URL" default:"" env:"NPMMIRROR_DATABASE_URL"`

	MetricsListenAddr string `help:"Address for the Prometheus metrics endpoint" default:":9090" env:"NPMMIRROR_METRICS_LISTEN_ADDR"`

	StorageType string  `help:"Output tree backend (fs or s3)" default:"fs" enum:"fs,s3" env:"NPMMIRROR_STORAGE_TYPE"`
	S3          S3Flags `embed:"" prefix:"s3-"`
}
