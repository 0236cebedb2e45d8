package config

import (
	"flag"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Builder layers command line flags over a YAML config file. Only flags that
// were given on the command line override the file.
type Builder struct {
	fs   *flag.FlagSet
	path string

	addr          string
	logLevel      string
	backend       string
	rotationsRoot string
	bucket        string
	region        string
	originPolicy  string
	preset        string
	bpm           float64
	sentryDSN     string
	volumes       volumeFlags
}

// NewBuilder registers the config flags on fs
func NewBuilder(fs *flag.FlagSet) *Builder {
	b := &Builder{fs: fs}
	fs.StringVar(&b.path, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&b.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&b.logLevel, "log-level", "", "Log level: debug, info or error")
	fs.StringVar(&b.backend, "store", "", "Rotation store backend: local or s3")
	fs.StringVar(&b.rotationsRoot, "rotations", "", "Local rotations directory")
	fs.StringVar(&b.bucket, "bucket", "", "S3 bucket for rotation files")
	fs.StringVar(&b.region, "region", "", "AWS region of the rotations bucket")
	fs.StringVar(&b.originPolicy, "origin-policy", "", "Origin policy: unbounded or clamp")
	fs.StringVar(&b.preset, "preset", "", "Initial window/level preset")
	fs.Float64Var(&b.bpm, "bpm", 0, "Cine heart rate in beats per minute")
	fs.StringVar(&b.sentryDSN, "sentry-dsn", "", "Sentry DSN for error reporting")
	fs.Var(&b.volumes, "volume", "Volume as label=directory[:pattern], may be repeated")
	return b
}

// ConfigPath is the file Build reads
func (b *Builder) ConfigPath() string {
	return b.path
}

// Build loads the config file, applies the flags that were set and validates
// the result. Call it after fs has been parsed.
func (b *Builder) Build() (*Config, error) {
	if !b.fs.Parsed() {
		return nil, errors.New("flags have not been parsed")
	}
	cfg, err := LoadConfig(b.path)
	if err != nil {
		return nil, err
	}

	b.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = b.addr
		case "log-level":
			cfg.Logging.Level = b.logLevel
		case "store":
			cfg.Rotations.Backend = b.backend
		case "rotations":
			cfg.Rotations.Root = b.rotationsRoot
		case "bucket":
			cfg.Rotations.Bucket = b.bucket
		case "region":
			cfg.Rotations.Region = b.region
		case "origin-policy":
			cfg.MPR.OriginPolicy = b.originPolicy
		case "preset":
			cfg.MPR.WindowLevelPreset = b.preset
		case "bpm":
			cfg.Cine.BPM = b.bpm
		case "sentry-dsn":
			cfg.Sentry.DSN = b.sentryDSN
		case "volume":
			// Volumes on the command line replace the file's list
			cfg.Volumes = append([]VolumeConfig{}, b.volumes...)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// volumeFlags collects repeated -volume label=directory[:pattern] flags
type volumeFlags []VolumeConfig

func (v *volumeFlags) String() string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, len(*v))
	for _, vol := range *v {
		s := vol.Label + "=" + vol.Directory
		if vol.Pattern != "" {
			s += ":" + vol.Pattern
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

func (v *volumeFlags) Set(value string) error {
	label, rest, ok := strings.Cut(value, "=")
	if !ok || label == "" || rest == "" {
		return errors.Errorf("volume %s is not label=directory[:pattern]", strconv.Quote(value))
	}
	vol := VolumeConfig{Label: label, Directory: rest, Visible: true}
	// The pattern follows the last colon so Windows drive letters survive
	if i := strings.LastIndex(rest, ":"); i > 1 {
		vol.Directory, vol.Pattern = rest[:i], rest[i+1:]
	}
	*v = append(*v, vol)
	return nil
}
