// Package config loads vecforge configuration from defaults, an optional
// YAML file and VECFORGE_* environment variables.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/vecforge/builder"
	"github.com/hupe1980/vecforge/device"
	"github.com/hupe1980/vecforge/distance"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/graph"
	"github.com/hupe1980/vecforge/persistence"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "VECFORGE"

// DefaultAcceleratorMemory is the accelerator budget used when
// device.memory_limit is 0.
const DefaultAcceleratorMemory int64 = 8 << 30

// Config is the top-level configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Device      DeviceConfig      `mapstructure:"device"`
	Build       BuildConfig       `mapstructure:"build"`
	Search      SearchConfig      `mapstructure:"search"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Server      ServerConfig      `mapstructure:"server"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
}

// LogConfig selects log level and format (text or json).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DeviceConfig describes the build device. Type is cpu or gpu.
type DeviceConfig struct {
	Type        string `mapstructure:"type"`
	ID          int    `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	MemoryLimit int64  `mapstructure:"memory_limit"`
	Streams     int    `mapstructure:"streams"`
}

// BuildConfig holds graph construction parameters.
type BuildConfig struct {
	Metric                  string      `mapstructure:"metric"`
	GraphDegree             int         `mapstructure:"graph_degree"`
	IntermediateGraphDegree int         `mapstructure:"intermediate_graph_degree"`
	Algo                    string      `mapstructure:"algo"`
	StoreDataset            bool        `mapstructure:"store_dataset"`
	Seed                    int64       `mapstructure:"seed"`
	IVFPQ                   IVFPQConfig `mapstructure:"ivf_pq"`
}

// IVFPQConfig tunes IVF-PQ candidate generation.
type IVFPQConfig struct {
	NLists           int     `mapstructure:"n_lists"`
	KMeansIters      int     `mapstructure:"kmeans_iters"`
	TrainsetFraction float64 `mapstructure:"trainset_fraction"`
	PQBits           int     `mapstructure:"pq_bits"`
	PQDim            int     `mapstructure:"pq_dim"`
	NProbes          int     `mapstructure:"n_probes"`
	RefineRate       float64 `mapstructure:"refine_rate"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	EF int `mapstructure:"ef"`
	K  int `mapstructure:"k"`
}

// PersistenceConfig selects block compression (none, lz4, zstd).
type PersistenceConfig struct {
	Compression string `mapstructure:"compression"`
}

// StorageConfig selects the object store backend (local, s3, minio).
type StorageConfig struct {
	Backend           string `mapstructure:"backend"`
	Root              string `mapstructure:"root"`
	Endpoint          string `mapstructure:"endpoint"`
	Region            string `mapstructure:"region"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	UseSSL            bool   `mapstructure:"use_ssl"`
	PathStyle         bool   `mapstructure:"path_style"`
	Prefix            string `mapstructure:"prefix"`
	UploadBytesPerSec int64  `mapstructure:"upload_bytes_per_sec"`
}

// JobsConfig selects the job store (memory, sqlite, dynamodb) and worker limits.
type JobsConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	DynamoDBTable string `mapstructure:"dynamodb_table"`
	MaxWorkers    int    `mapstructure:"max_workers"`
	TempDir       string `mapstructure:"temp_dir"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// CoordinatorConfig controls registration with a coordinator node.
type CoordinatorConfig struct {
	URL           string `mapstructure:"url"`
	Register      bool   `mapstructure:"register"`
	AdvertiseHost string `mapstructure:"advertise_host"`
	AdvertisePort int    `mapstructure:"advertise_port"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	params := graph.DefaultParams()
	ivf := builder.DefaultIVFPQ()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("device.type", "cpu")
	v.SetDefault("device.id", 0)
	v.SetDefault("device.name", "accelerator0")
	v.SetDefault("device.memory_limit", int64(0))
	v.SetDefault("device.streams", 0)

	v.SetDefault("build.metric", "l2")
	v.SetDefault("build.graph_degree", params.GraphDegree)
	v.SetDefault("build.intermediate_graph_degree", params.IntermediateGraphDegree)
	v.SetDefault("build.algo", params.BuildAlgo.String())
	v.SetDefault("build.store_dataset", params.StoreDataset)
	v.SetDefault("build.seed", params.Seed)
	v.SetDefault("build.ivf_pq.n_lists", ivf.NLists)
	v.SetDefault("build.ivf_pq.kmeans_iters", ivf.KMeansIters)
	v.SetDefault("build.ivf_pq.trainset_fraction", ivf.TrainsetFraction)
	v.SetDefault("build.ivf_pq.pq_bits", ivf.PQBits)
	v.SetDefault("build.ivf_pq.pq_dim", ivf.PQDim)
	v.SetDefault("build.ivf_pq.n_probes", ivf.NProbes)
	v.SetDefault("build.ivf_pq.refine_rate", ivf.RefineRate)

	v.SetDefault("search.ef", graph.DefaultEF)
	v.SetDefault("search.k", 10)

	v.SetDefault("persistence.compression", "none")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.upload_bytes_per_sec", int64(0))

	v.SetDefault("jobs.backend", "memory")
	v.SetDefault("jobs.sqlite_path", "vecforge-jobs.db")
	v.SetDefault("jobs.dynamodb_table", "vecforge-jobs")
	v.SetDefault("jobs.max_workers", 5)
	v.SetDefault("jobs.temp_dir", "/tmp")

	v.SetDefault("server.listen", "0.0.0.0:6005")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("coordinator.url", "")
	v.SetDefault("coordinator.register", false)
	v.SetDefault("coordinator.advertise_host", "")
	v.SetDefault("coordinator.advertise_port", 6005)
}

// SetupEnv maps keys to VECFORGE_* variables ("." becomes "_"). The build
// device type also answers to INDEX_BUILD_TYPE.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("device.type", EnvPrefix+"_DEVICE_TYPE", "INDEX_BUILD_TYPE")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)
	return v
}

// Load reads the optional file at path on top of defaults and environment.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.IO("config.load", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Configuration("config.load", "config", "unmarshalling config: %v", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, errs.Configuration("config.validate", "config", "validating config: %v", errors.Join(problems...))
	}
	return &cfg, nil
}

// Validate returns every problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var problems []error
	add := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	oneOf := func(param, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		add(bad(param, "must be one of %v, got %q", allowed, value))
	}

	oneOf("log.format", c.Log.Format, "text", "json")
	_, err := c.DeviceKind()
	add(err)
	if c.Device.MemoryLimit < 0 {
		add(bad("device.memory_limit", "must not be negative, got %d", c.Device.MemoryLimit))
	}
	if c.Device.Streams < 0 {
		add(bad("device.streams", "must not be negative, got %d", c.Device.Streams))
	}
	_, err = c.Metric()
	add(err)
	_, err = c.Params()
	add(err)
	if c.Search.EF <= 0 {
		add(bad("search.ef", "must be positive, got %d", c.Search.EF))
	}
	if c.Search.K <= 0 {
		add(bad("search.k", "must be positive, got %d", c.Search.K))
	}
	_, err = c.Compression()
	add(err)

	oneOf("storage.backend", c.Storage.Backend, "local", "s3", "minio")
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Root == "" {
			add(bad("storage.root", "must not be empty for the local backend"))
		}
	case "minio":
		if c.Storage.Endpoint == "" {
			add(bad("storage.endpoint", "must not be empty for the minio backend"))
		}
	}
	if c.Storage.UploadBytesPerSec < 0 {
		add(bad("storage.upload_bytes_per_sec", "must not be negative, got %d", c.Storage.UploadBytesPerSec))
	}

	oneOf("jobs.backend", c.Jobs.Backend, "memory", "sqlite", "dynamodb")
	if c.Jobs.Backend == "sqlite" && c.Jobs.SQLitePath == "" {
		add(bad("jobs.sqlite_path", "must not be empty for the sqlite backend"))
	}
	if c.Jobs.Backend == "dynamodb" && c.Jobs.DynamoDBTable == "" {
		add(bad("jobs.dynamodb_table", "must not be empty for the dynamodb backend"))
	}
	if c.Jobs.MaxWorkers <= 0 {
		add(bad("jobs.max_workers", "must be positive, got %d", c.Jobs.MaxWorkers))
	}

	add(validateListen(c.Server.Listen))

	if c.Coordinator.Register {
		if c.Coordinator.URL == "" {
			add(bad("coordinator.url", "is required when coordinator.register is set"))
		}
		if c.Coordinator.AdvertisePort < 1 || c.Coordinator.AdvertisePort > 65535 {
			add(bad("coordinator.advertise_port", "must be between 1 and 65535, got %d", c.Coordinator.AdvertisePort))
		}
	}
	return problems
}

// bad reports an invalid configuration key; the key leads the message.
func bad(param, format string, args ...any) error {
	return errs.Configuration("config.validate", param, param+" "+format, args...)
}

func validateListen(addr string) error {
	if addr == "" {
		return bad("server.listen", "must not be empty")
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return bad("server.listen", "must be a valid host:port address, got %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return bad("server.listen", "port must be a number, got %q", portStr)
	}
	if port < 0 || port > 65535 {
		return bad("server.listen", "port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// DeviceKind parses Device.Type.
func (c *Config) DeviceKind() (device.Kind, error) {
	return device.ParseKind(c.Device.Type)
}

// BuildDevice returns the configured build device.
func (c *Config) BuildDevice() (device.Device, error) {
	kind, err := c.DeviceKind()
	if err != nil {
		return device.Device{}, err
	}
	if kind == device.Host {
		dev := device.HostDevice()
		if c.Device.MemoryLimit > 0 {
			dev.MemoryBytes = c.Device.MemoryLimit
		}
		if c.Device.Streams > 0 {
			dev.Streams = c.Device.Streams
		}
		return dev, nil
	}
	acc := device.Device{
		ID:          c.Device.ID,
		Kind:        device.Accelerator,
		Name:        c.Device.Name,
		MemoryBytes: c.Device.MemoryLimit,
		Streams:     max(c.Device.Streams, 1),
	}
	if acc.MemoryBytes == 0 {
		acc.MemoryBytes = DefaultAcceleratorMemory
	}
	env, err := device.NewEnvironment(acc)
	if err != nil {
		return device.Device{}, err
	}
	return env.Lookup(acc.ID)
}

// Metric parses Build.Metric.
func (c *Config) Metric() (distance.Metric, error) {
	return distance.ParseMetric(c.Build.Metric)
}

// Params returns the validated graph parameters.
func (c *Config) Params() (graph.Params, error) {
	algo, err := graph.ParseBuildAlgo(c.Build.Algo)
	if err != nil {
		return graph.Params{}, err
	}
	p := graph.Params{
		GraphDegree:             c.Build.GraphDegree,
		IntermediateGraphDegree: c.Build.IntermediateGraphDegree,
		BuildAlgo:               algo,
		StoreDataset:            c.Build.StoreDataset,
		Seed:                    c.Build.Seed,
	}
	return p, p.Validate()
}

// IVFPQ returns the IVF-PQ tuning.
func (c *Config) IVFPQ() builder.IVFPQ {
	i := c.Build.IVFPQ
	return builder.IVFPQ{
		NLists:           i.NLists,
		KMeansIters:      i.KMeansIters,
		TrainsetFraction: i.TrainsetFraction,
		PQBits:           i.PQBits,
		PQDim:            i.PQDim,
		NProbes:          i.NProbes,
		RefineRate:       i.RefineRate,
	}
}

// Compression parses Persistence.Compression.
func (c *Config) Compression() (persistence.Compression, error) {
	return persistence.ParseCompression(c.Persistence.Compression)
}
