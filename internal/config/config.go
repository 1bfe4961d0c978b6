package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/naoina/toml"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/image-classifier/internal/model"
)

type Config struct {
	ModelPath  string
	LabelsPath string
	InputName  string
	OutputName string `toml:",omitempty"`

	Backend           string
	Provider          string
	DeviceID          int
	Threads           int
	SharedLibraryPath string `toml:",omitempty"`

	Listen         string
	CacheSize      int
	MaxUploadBytes int64

	LogLevel string
}

// Default mirrors the conventional working-directory layout: the model
// and its labels sit next to the binary.
func Default() Config {
	return Config{
		ModelPath:      "resnet50.onnx",
		LabelsPath:     "labels.txt",
		InputName:      "image_tensor",
		Backend:        model.BackendONNXRuntime,
		Provider:       string(model.ProviderCPU),
		Listen:         ":8080",
		CacheSize:      128,
		MaxUploadBytes: 10 << 20,
		LogLevel:       "info",
	}
}

// TOML keys are the Go field names.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// LoadFile decodes the TOML file at path over cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// LoadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error; variables already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CLASSIFIER_"

// ApplyEnv overrides cfg with CLASSIFIER_* variables returned by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MODEL":       &cfg.ModelPath,
		"LABELS":      &cfg.LabelsPath,
		"INPUT_NAME":  &cfg.InputName,
		"OUTPUT_NAME": &cfg.OutputName,
		"BACKEND":     &cfg.Backend,
		"PROVIDER":    &cfg.Provider,
		"ORT_LIB":     &cfg.SharedLibraryPath,
		"LISTEN":      &cfg.Listen,
		"LOG_LEVEL":   &cfg.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEVICE_ID":  &cfg.DeviceID,
		"THREADS":    &cfg.Threads,
		"CACHE_SIZE": &cfg.CacheSize,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is empty")
	}
	if c.LabelsPath == "" {
		return errors.New("labels path is empty")
	}
	if c.InputName == "" {
		return errors.New("input name is empty")
	}

	provider, err := model.ParseProvider(c.Provider)
	if err != nil {
		return err
	}
	switch c.Backend {
	case model.BackendONNXRuntime:
	case model.BackendBorn:
		if provider != model.ProviderCPU {
			return fmt.Errorf("backend %s supports only the cpu provider", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.DeviceID < 0 {
		return fmt.Errorf("device id must not be negative, got %d", c.DeviceID)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Session converts c into the engine configuration.
func (c *Config) Session() (model.SessionConfig, error) {
	provider, err := model.ParseProvider(c.Provider)
	if err != nil {
		return model.SessionConfig{}, err
	}
	return model.SessionConfig{
		ModelPath:         c.ModelPath,
		InputName:         c.InputName,
		OutputName:        c.OutputName,
		Provider:          provider,
		DeviceID:          c.DeviceID,
		Threads:           c.Threads,
		SharedLibraryPath: c.SharedLibraryPath,
	}, nil
}
