package pathoram

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// EvictionStrategy selects how the engine chooses which stash blocks
// to place during a path write-back (spec.md §4.2).
type EvictionStrategy int

const (
	// EvictLevelByLevel walks the path leaf-to-root, filling each
	// bucket's free slots with the first eligible stash block found.
	EvictLevelByLevel EvictionStrategy = iota

	// EvictGreedyByDepth places each stash block at the deepest
	// eligible bucket first, minimizing stash residency.
	EvictGreedyByDepth
)

func (s EvictionStrategy) String() string {
	switch s {
	case EvictLevelByLevel:
		return "level-by-level"
	case EvictGreedyByDepth:
		return "greedy-by-depth"
	default:
		return "unknown"
	}
}

// Config holds every Path-ORAM construction parameter. Validate fills
// zero-value BucketCapacity, StashLimit, MaxEvictionAttempts, round
// limits and evictor wake bounds with defaults; a zero TreeHeight is
// kept and yields a single-bucket tree.
type Config struct {
	// TreeHeight is H: the tree has 2^H leaves and 2^(H+1)-1 buckets.
	TreeHeight int
	// BucketCapacity is Z, the fixed number of block slots per bucket.
	BucketCapacity int
	// StashLimit is S, the soft stash limit watermarks are computed
	// from and the hard limit a persistent overflow is measured
	// against.
	StashLimit int

	EvictionStrategy EvictionStrategy
	CipherSuite      CipherSuite

	// MaxEvictionAttempts bounds how many engine accesses a block may
	// survive in the stash (its Attempts counter) before it is eagerly
	// remapped to a fresh leaf (spec.md §4.2, "remap-on-stuck").
	MaxEvictionAttempts int
	// NormalRoundLimit / EmergencyRoundLimit bound a single
	// full-tree-eviction invocation's passes (spec.md §5).
	NormalRoundLimit    int
	EmergencyRoundLimit int

	// EvictorWakeMin/Max bound the background evictor's jittered
	// polling interval (spec.md §4.5, "every 5-10 ms").
	EvictorWakeMin time.Duration
	EvictorWakeMax time.Duration

	// EmergencyDropsAllowed gates whether emergency mode may drop
	// blocks at all (spec.md §4.2 step 2, §9's "configuration
	// decision"). When false, emergency mode stops after remap+evict
	// and dynamic growth, never dropping a block.
	EmergencyDropsAllowed bool
}

// Watermarks are fractions of StashLimit at which the engine changes
// behavior (spec.md §4.2).
type Watermarks struct {
	Low      int
	Mid      int
	High     int
	Critical int
}

// watermarks computes the stash thresholds for the validated config.
func (c Config) watermarks() Watermarks {
	return Watermarks{
		Low:      int(0.3 * float64(c.StashLimit)),
		Mid:      int(0.5 * float64(c.StashLimit)),
		High:     int(0.75 * float64(c.StashLimit)),
		Critical: int(0.9 * float64(c.StashLimit)),
	}
}

const (
	defaultBucketCapacity      = 4
	defaultStashLimit          = 100
	defaultMaxEvictionAttempts = 5
	defaultNormalRoundLimit    = 5
	defaultEmergencyRoundLimit = 8
	defaultEvictorWakeMin      = 5 * time.Millisecond
	defaultEvictorWakeMax      = 10 * time.Millisecond
)

// Validate fills in defaults and reports every violated field at
// once via ConfigError, rather than stopping at the first mistake.
func (c Config) Validate() (Config, error) {
	var errs *multierror.Error

	if c.TreeHeight < 0 {
		errs = multierror.Append(errs, fmt.Errorf("tree height must be >= 0, got %d", c.TreeHeight))
	}
	if c.BucketCapacity < 0 {
		errs = multierror.Append(errs, fmt.Errorf("bucket capacity must be >= 0, got %d", c.BucketCapacity))
	}
	if c.StashLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("stash limit must be >= 0, got %d", c.StashLimit))
	}
	if c.EvictorWakeMin < 0 || c.EvictorWakeMax < 0 {
		errs = multierror.Append(errs, fmt.Errorf("evictor wake bounds must be >= 0"))
	}
	if c.EvictorWakeMin > 0 && c.EvictorWakeMax > 0 && c.EvictorWakeMin > c.EvictorWakeMax {
		errs = multierror.Append(errs, fmt.Errorf("evictor wake min (%s) exceeds max (%s)", c.EvictorWakeMin, c.EvictorWakeMax))
	}

	if errs != nil {
		return c, &ConfigError{errs: errs}
	}

	if c.BucketCapacity == 0 {
		c.BucketCapacity = defaultBucketCapacity
	}
	if c.StashLimit == 0 {
		c.StashLimit = defaultStashLimit
	}
	if c.MaxEvictionAttempts == 0 {
		c.MaxEvictionAttempts = defaultMaxEvictionAttempts
	}
	if c.NormalRoundLimit == 0 {
		c.NormalRoundLimit = defaultNormalRoundLimit
	}
	if c.EmergencyRoundLimit == 0 {
		c.EmergencyRoundLimit = defaultEmergencyRoundLimit
	}
	if c.EvictorWakeMin == 0 {
		c.EvictorWakeMin = defaultEvictorWakeMin
	}
	if c.EvictorWakeMax == 0 {
		c.EvictorWakeMax = defaultEvictorWakeMax
	}
	return c, nil
}

// LoadConfig assembles a Config from environment variables (prefix
// PATHORAM_, e.g. PATHORAM_TREEHEIGHT) and, if path is non-empty, a
// YAML/JSON/TOML file, via viper. It never bypasses Validate: the
// returned Config has already had defaults applied and would be
// rejected the same way a hand-built Config would be.
//
// There is deliberately no companion CLI/flag binding — spec.md §6
// states plainly that there is no CLI surface for the core.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PATHORAM")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("pathoram: load config %s: %w", path, err)
		}
	}

	cfg := Config{
		TreeHeight:            v.GetInt("treeheight"),
		BucketCapacity:        v.GetInt("bucketcapacity"),
		StashLimit:            v.GetInt("stashlimit"),
		EvictionStrategy:      EvictionStrategy(v.GetInt("evictionstrategy")),
		CipherSuite:           CipherSuite(v.GetInt("ciphersuite")),
		MaxEvictionAttempts:   v.GetInt("maxevictionattempts"),
		NormalRoundLimit:      v.GetInt("normalroundlimit"),
		EmergencyRoundLimit:   v.GetInt("emergencyroundlimit"),
		EvictorWakeMin:        v.GetDuration("evictorwakemin"),
		EvictorWakeMax:        v.GetDuration("evictorwakemax"),
		EmergencyDropsAllowed: v.GetBool("emergencydropsallowed"),
	}
	return cfg.Validate()
}
