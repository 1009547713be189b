// Package config loads viddup's on-disk configuration file and layers
// CLI flag overrides on top of it: an explicitly set flag beats the
// config file, which beats the built-in defaults.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Defaults mirror the CLI flag defaults in the external interface table:
// every field here is the value used when neither the config file nor a
// command-line flag sets it.
const (
	DefaultDBDriver    = "sqlite"
	DefaultDBDSN       = "viddup.db"
	DefaultIndexLength = 10
	DefaultSceneLength = 300.0
	DefaultRadius      = 3.0
	DefaultStep        = 1
	DefaultIgnoreStart = 0.0
	DefaultIgnoreEnd   = 0.0
	DefaultKNNLib      = "hnsw"
	DefaultVidExt      = "mp4,mkv,avi,ts,asf,wmv"
	DefaultNice        = 5
)

// FileName is the config file viddup looks for in the current working
// directory.
const FileName = ".viddup.toml"

// Config holds every tunable the CLI surface exposes. When Config
// represents a parsed config file, zero values mean "not set by this
// layer"; flag values are applied by ApplyFlags only where the flag was
// explicitly changed. Defaults, Load and ApplyFlags together give every
// field its effective value.
type Config struct {
	DBDriver    string  `toml:"db-driver"`
	DBDSN       string  `toml:"db-dsn"`
	IndexLength int     `toml:"indexlength"`
	SceneLength float64 `toml:"scenelength"`
	Radius      float64 `toml:"radius"`
	Step        int     `toml:"step"`
	IgnoreStart float64 `toml:"ignore-start"`
	IgnoreEnd   float64 `toml:"ignore-end"`
	FixSpeed    bool    `toml:"fixspeed"`
	KNNLib      string  `toml:"knnlib"`
	VidExt      string  `toml:"vidext"`
	Nice        int     `toml:"nice"`
}

// Defaults returns a Config populated with viddup's built-in defaults.
func Defaults() Config {
	return Config{
		DBDriver:    DefaultDBDriver,
		DBDSN:       DefaultDBDSN,
		IndexLength: DefaultIndexLength,
		SceneLength: DefaultSceneLength,
		Radius:      DefaultRadius,
		Step:        DefaultStep,
		IgnoreStart: DefaultIgnoreStart,
		IgnoreEnd:   DefaultIgnoreEnd,
		KNNLib:      DefaultKNNLib,
		VidExt:      DefaultVidExt,
		Nice:        DefaultNice,
	}
}

// Load reads path (FileName by convention) and overlays any set fields
// onto Defaults(). A missing file is not an error — it just means the
// defaults stand until flags override them.
func Load(path string) (Config, error) {
	cfg := Defaults()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var fileCfg Config
	if err := toml.Unmarshal(b, &fileCfg); err != nil {
		return cfg, err
	}
	cfg.overlay(fileCfg)
	return cfg, nil
}

// overlay applies every non-zero field of other onto c.
func (c *Config) overlay(other Config) {
	if other.DBDriver != "" {
		c.DBDriver = other.DBDriver
	}
	if other.DBDSN != "" {
		c.DBDSN = other.DBDSN
	}
	if other.IndexLength != 0 {
		c.IndexLength = other.IndexLength
	}
	if other.SceneLength != 0 {
		c.SceneLength = other.SceneLength
	}
	if other.Radius != 0 {
		c.Radius = other.Radius
	}
	if other.Step != 0 {
		c.Step = other.Step
	}
	if other.IgnoreStart != 0 {
		c.IgnoreStart = other.IgnoreStart
	}
	if other.IgnoreEnd != 0 {
		c.IgnoreEnd = other.IgnoreEnd
	}
	if other.FixSpeed {
		c.FixSpeed = true
	}
	if other.KNNLib != "" {
		c.KNNLib = other.KNNLib
	}
	if other.VidExt != "" {
		c.VidExt = other.VidExt
	}
	if other.Nice != 0 {
		c.Nice = other.Nice
	}
}

// ApplyFlags layers CLI-flag values onto c wherever changed reports the
// flag was explicitly set, giving flags the final say over both the
// config file and the built-in defaults.
func (c *Config) ApplyFlags(flags Config, changed func(field string) bool) {
	if changed("db-driver") {
		c.DBDriver = flags.DBDriver
	}
	if changed("db-dsn") {
		c.DBDSN = flags.DBDSN
	}
	if changed("indexlength") {
		c.IndexLength = flags.IndexLength
	}
	if changed("scenelength") {
		c.SceneLength = flags.SceneLength
	}
	if changed("radius") {
		c.Radius = flags.Radius
	}
	if changed("step") {
		c.Step = flags.Step
	}
	if changed("ignore_start") {
		c.IgnoreStart = flags.IgnoreStart
	}
	if changed("ignore_end") {
		c.IgnoreEnd = flags.IgnoreEnd
	}
	if changed("fixspeed") {
		c.FixSpeed = flags.FixSpeed
	}
	if changed("knnlib") {
		c.KNNLib = flags.KNNLib
	}
	if changed("vidext") {
		c.VidExt = flags.VidExt
	}
	if changed("nice") {
		c.Nice = flags.Nice
	}
}
