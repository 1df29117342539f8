package stext

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultStoreSize matches the engine's default resource store limit.
const DefaultStoreSize = 256 << 20

// Options controls structured text extraction.
type Options struct {
	// LineTolerance is the maximum baseline deviation, as a multiple of the
	// font size, for a glyph to stay on the current line (default: 0.5)
	LineTolerance float64

	// BlockGap is the line gap, as a multiple of the dominant font size,
	// that starts a new block when too few lines exist to adapt (default: 0.9)
	BlockGap float64

	// SpaceGap is the gap, as a multiple of the font size, above which a
	// synthetic space is inserted between glyphs (default: 0.25)
	SpaceGap float64

	// ColumnGap is the forward jump, as a multiple of the font size, that
	// ends a line even on the same baseline (default: 5)
	ColumnGap float64

	// PreserveSpacing disables synthetic space insertion (default: false)
	PreserveSpacing bool

	// PreserveLigatures keeps ligature code points such as U+FB01 instead of
	// expanding them into their letters (default: false)
	PreserveLigatures bool

	// Language tags every extracted character (default: language.Und)
	Language language.Tag

	// Cookie, when set, can abort extraction and reports progress.
	Cookie *Cookie
}

// DefaultOptions returns the default extraction options.
func DefaultOptions() Options {
	return Options{
		LineTolerance: 0.5,
		BlockGap:      0.9,
		SpaceGap:      0.25,
		ColumnGap:     5,
		Language:      language.Und,
	}
}

// withDefaults fills zero tolerances so a zero Options behaves like DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LineTolerance <= 0 {
		o.LineTolerance = def.LineTolerance
	}
	if o.BlockGap <= 0 {
		o.BlockGap = def.BlockGap
	}
	if o.SpaceGap <= 0 {
		o.SpaceGap = def.SpaceGap
	}
	if o.ColumnGap <= 0 {
		o.ColumnGap = def.ColumnGap
	}
	return o
}

// Config is passed to NewContext and holds everything a context needs.
// There is no process-wide state.
type Config struct {
	// StoreSize bounds the bytes held by live stext pages and buffers
	// (default: 256 MiB)
	StoreSize int64

	// Extraction is used when NewSTextPage is given nil Options.
	Extraction Options

	// EnableMetricsLogging logs extraction timing and statistics (default: false)
	EnableMetricsLogging bool

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the default context configuration.
func DefaultConfig() Config {
	return Config{
		StoreSize:  DefaultStoreSize,
		Extraction: DefaultOptions(),
	}
}

type yamlConfig struct {
	StoreSize      *int64 `yaml:"store_size"`
	MetricsLogging *bool  `yaml:"metrics_logging"`
	Extraction     struct {
		LineTolerance     *float64 `yaml:"line_tolerance"`
		BlockGap          *float64 `yaml:"block_gap"`
		SpaceGap          *float64 `yaml:"space_gap"`
		ColumnGap         *float64 `yaml:"column_gap"`
		PreserveSpacing   *bool    `yaml:"preserve_spacing"`
		PreserveLigatures *bool    `yaml:"preserve_ligatures"`
		Language          *string  `yaml:"language"`
	} `yaml:"extraction"`
}

// LoadConfig reads a YAML configuration file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to open config")
	}
	defer f.Close()

	return ReadConfig(f)
}

// ReadConfig decodes YAML configuration from r over DefaultConfig.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	var yc yamlConfig
	if err := yaml.NewDecoder(r).Decode(&yc); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}

	if yc.StoreSize != nil {
		if *yc.StoreSize <= 0 {
			return Config{}, errors.Wrapf(ErrInvalidArgument, "store_size must be positive, got %d", *yc.StoreSize)
		}
		cfg.StoreSize = *yc.StoreSize
	}
	if yc.MetricsLogging != nil {
		cfg.EnableMetricsLogging = *yc.MetricsLogging
	}

	ex := yc.Extraction
	if ex.LineTolerance != nil {
		cfg.Extraction.LineTolerance = *ex.LineTolerance
	}
	if ex.BlockGap != nil {
		cfg.Extraction.BlockGap = *ex.BlockGap
	}
	if ex.SpaceGap != nil {
		cfg.Extraction.SpaceGap = *ex.SpaceGap
	}
	if ex.ColumnGap != nil {
		cfg.Extraction.ColumnGap = *ex.ColumnGap
	}
	if ex.PreserveSpacing != nil {
		cfg.Extraction.PreserveSpacing = *ex.PreserveSpacing
	}
	if ex.PreserveLigatures != nil {
		cfg.Extraction.PreserveLigatures = *ex.PreserveLigatures
	}
	if ex.Language != nil {
		tag, err := language.Parse(*ex.Language)
		if err != nil {
			return Config{}, errors.Wrapf(ErrInvalidArgument, "bad language %q: %v", *ex.Language, err)
		}
		cfg.Extraction.Language = tag
	}

	return cfg, nil
}
