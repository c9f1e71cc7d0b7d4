package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EngineSettings are the tunables that can change without a restart.
type EngineSettings struct {
	DedupWindowDays    int         `mapstructure:"dedupWindowDays"`
	ChainToleranceDays int         `mapstructure:"chainToleranceDays"`
	PreviewRows        int         `mapstructure:"previewRows"`
	MaxReportedErrors  int         `mapstructure:"maxReportedErrors"`
	CSVPresets         []CSVPreset `mapstructure:"csvPresets"`
}

// CSVPreset is a named CSV column mapping for a known bank export format.
type CSVPreset struct {
	Name              string `mapstructure:"name" json:"name"`
	DateColumn        string `mapstructure:"dateColumn" json:"date_column"`
	DescriptionColumn string `mapstructure:"descriptionColumn" json:"description_column"`
	AmountColumn      string `mapstructure:"amountColumn" json:"amount_column"`
	ReferenceColumn   string `mapstructure:"referenceColumn" json:"reference_column"`
	DateFormat        string `mapstructure:"dateFormat" json:"date_format"`
	DecimalSeparator  string `mapstructure:"decimalSeparator" json:"decimal_separator"`
	Delimiter         string `mapstructure:"delimiter" json:"delimiter"`
	SkipRows          int    `mapstructure:"skipRows" json:"skip_rows"`
	InvertAmount      bool   `mapstructure:"invertAmount" json:"invert_amount"`
}

func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		DedupWindowDays:    3,
		ChainToleranceDays: 2,
		PreviewRows:        5,
		MaxReportedErrors:  10,
		CSVPresets: []CSVPreset{
			{
				Name:              "DNB",
				DateColumn:        "Dato",
				DescriptionColumn: "Forklaring",
				AmountColumn:      "Beløp",
				DateFormat:        "DD.MM.YYYY",
				DecimalSeparator:  ",",
				Delimiter:         ";",
			},
			{
				Name:              "Sbanken",
				DateColumn:        "BOKFØRINGSDATO",
				DescriptionColumn: "BESKRIVELSE",
				AmountColumn:      "BELØP",
				ReferenceColumn:   "ARKIVREFERANSE",
				DateFormat:        "DD.MM.YYYY",
				DecimalSeparator:  ",",
				Delimiter:         ";",
				SkipRows:          0,
			},
			{
				Name:              "Generic ISO",
				DateColumn:        "date",
				DescriptionColumn: "description",
				AmountColumn:      "amount",
				ReferenceColumn:   "reference",
				DateFormat:        "YYYY-MM-DD",
				DecimalSeparator:  ".",
				Delimiter:         ",",
			},
		},
	}
}

type EngineSettingsHolder struct {
	current atomic.Value // holds EngineSettings
}

// NewStaticEngineSettingsHolder returns a holder that never reloads.
func NewStaticEngineSettingsHolder(settings EngineSettings) *EngineSettingsHolder {
	holder := &EngineSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func NewEngineSettingsHolder(log *zap.Logger) (*EngineSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("regnskap")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/regnskap")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REGNSKAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineSettings()
	v.SetDefault("engine.dedupWindowDays", defaults.DedupWindowDays)
	v.SetDefault("engine.chainToleranceDays", defaults.ChainToleranceDays)
	v.SetDefault("engine.previewRows", defaults.PreviewRows)
	v.SetDefault("engine.maxReportedErrors", defaults.MaxReportedErrors)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := decodeEngineSettings(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticEngineSettingsHolder(cfg)

	if v.ConfigFileUsed() == "" {
		return holder, nil
	}

	log = log.Named("config.engine")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeEngineSettings(v, defaults)
		if err != nil {
			log.Warn("engine settings reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("engine settings reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *EngineSettingsHolder) Get() EngineSettings {
	return h.current.Load().(EngineSettings)
}

func decodeEngineSettings(v *viper.Viper, defaults EngineSettings) (EngineSettings, error) {
	var cfg EngineSettings
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return EngineSettings{}, err
	}
	if len(cfg.CSVPresets) == 0 {
		cfg.CSVPresets = defaults.CSVPresets
	}
	if err := validateEngineSettings(cfg); err != nil {
		return EngineSettings{}, err
	}
	return cfg, nil
}

func validateEngineSettings(cfg EngineSettings) error {
	if cfg.DedupWindowDays < 0 {
		return errors.New("engine.dedupWindowDays cannot be negative")
	}
	if cfg.ChainToleranceDays < 0 {
		return errors.New("engine.chainToleranceDays cannot be negative")
	}
	if cfg.PreviewRows <= 0 {
		return errors.New("engine.previewRows must be positive")
	}
	seen := make(map[string]struct{}, len(cfg.CSVPresets))
	for _, preset := range cfg.CSVPresets {
		name := strings.ToLower(strings.TrimSpace(preset.Name))
		if name == "" {
			return errors.New("engine.csvPresets: name is required")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("engine.csvPresets: duplicate preset %q", preset.Name)
		}
		seen[name] = struct{}{}
		if preset.DateColumn == "" || preset.DescriptionColumn == "" || preset.AmountColumn == "" {
			return fmt.Errorf("engine.csvPresets: preset %q needs date, description and amount columns", preset.Name)
		}
	}
	return nil
}
