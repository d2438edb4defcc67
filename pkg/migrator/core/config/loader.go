package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const moduleName = "config"

// EnvPrefix is the prefix of every environment override, derived from the top-level yaml key.
const EnvPrefix = "MIGRATOR_"

// Source describes where the configuration comes from.
type Source struct {
	// EnvFilePath is the .env file to load before anything else. Empty means ".env" if present.
	EnvFilePath string
	// Path is a YAML file on disk. When empty, Embedded is used.
	Path string
	// Embedded is the configuration compiled into the binary.
	Embedded EmbeddedConfig
	// Expander expands placeholders before parsing. Nil means OsEnvironmentExpander.
	Expander EnvironmentExpander
}

// LoadConfig loads configuration from a .env file, YAML and environment variables, then validates it.
// This function is expected to be called only once during application startup.
//
// Parameters:
//
//	src: Where the configuration comes from.
//
// Returns:
//
//	A pointer to the loaded Config, or a ConfigurationError describing every problem found.
func LoadConfig(src Source) (*Config, error) {
	if src.EnvFilePath != "" {
		if err := godotenv.Load(src.EnvFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", src.EnvFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	raw := []byte(src.Embedded)
	if src.Path != "" {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, exception.Newf(exception.KindConfiguration, moduleName, "failed to read config file '%s'", src.Path, err)
		}
		raw = data
	}

	expander := src.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(raw)
	if err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, "failed to expand environment placeholders", err)
	}

	// YAML values overwrite the defaults; keys absent from the document keep them.
	cfg := NewConfig()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, "failed to unmarshal config", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, "failed to load config from environment variables", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, "invalid configuration", err)
	}
	return cfg, nil
}

// loadStructFromEnv recursively overrides struct fields from environment variables.
// The variable name is the upper-cased path of yaml tags joined by "_", e.g.
// MIGRATOR_EXEC_BATCH_CHUNK_SIZE. Maps and slices of structs are left to YAML.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// SetStructFieldFromEnv sets the field of structVal whose yaml tag equals fieldName
// (case-insensitive). Unknown names are ignored. The database adapter uses it to apply
// MIGRATOR_DATASOURCES_<NAME>_<FIELD> overrides after decoding.
func SetStructFieldFromEnv(structVal reflect.Value, fieldName string, value string) error {
	typ := structVal.Type()
	for i := 0; i < typ.NumField(); i++ {
		yamlTag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		if strings.EqualFold(yamlTag, fieldName) {
			return setField(structVal.Field(i), value)
		}
	}
	return nil
}

// setField sets a field from its string form. Slices of strings take a comma separated list.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
