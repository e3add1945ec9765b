package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "ROADMAP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	Storage        struct {
		Driver string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=redis mysql postgres sqlite memory"` // progress backend
		Key    string `mapstructure:"key" json:"key" yaml:"key" validate:"required"`                                       // key holding the progress table
		Table  string `mapstructure:"table" json:"table" yaml:"table"`                                                     // kv table for SQL backends
	} `mapstructure:"storage" json:"storage" yaml:"storage"`
	Database struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                                // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                      // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password"`                                           // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"` // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                             // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema"`                                          // use schema, or file path for sqlite
		User     string `mapstructure:"username" json:"username" yaml:"username"`                                    // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`       // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`       // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password"` // password for security reasons
		DB       int    `mapstructure:"db" json:"db" yaml:"db"`
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Catalog struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path" validate:"required"` // roadmap catalog yaml
	} `mapstructure:"catalog" json:"catalog" yaml:"catalog"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength int `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=1"` // length of generated request ID
	} `mapstructure:"security" json:"security" yaml:"security"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// RegisterFlags declare every option on fs
func RegisterFlags(fs *pflag.FlagSet) {
	// app
	fs.String("host", "", "binding address")
	fs.String("app_id", "roadmap-progress", "application identifier")
	fs.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	fs.Int("port", 8081, "listening port")
	fs.Duration("request_timeout", 30*time.Second, "request handling timeout(m, s and h units are supported), eg.30s")

	// storage
	fs.String("storage.driver", "redis", "progress storage backend, one of redis, mysql, postgres, sqlite, memory")
	fs.String("storage.key", "roadmap:progress", "key under which the progress table is persisted")
	fs.String("storage.table", "kv_store", "key-value table used by SQL backends")

	// database
	fs.String("database.host", "127.0.0.1", "database host")
	fs.Int("database.port", 3306, "database server port")
	fs.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	fs.String("database.username", "", "database username")
	fs.String("database.password", "", "database password")
	fs.String("database.schema", "", "database schema, or database file path when sqlite is used")
	fs.String("database.query", "", "additional DSN query parameters('?' is auto prefixed)")
	fs.Int32("database.maxconn", 20, "max connection count")

	// kv storage
	fs.String("kv.host", "127.0.0.1", "kv host")
	fs.Int("kv.port", 6379, "kv server port")
	fs.String("kv.password", "", "kv server password")
	fs.Int("kv.db", 0, "kv database index")

	// catalog
	fs.String("catalog.file_path", "catalog.yaml", "roadmap catalog file")

	// logging
	fs.String("logging.level", "info", "logging level")
	fs.String("logging.file_path", "", "log to file")

	// security
	fs.Int("security.id_length", 21, "set length of generated request ID")

	// DevOp
	fs.Bool("devop.apm", false, "enable apm metrics")
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	RegisterFlags(pflag.CommandLine)
	pflag.Parse()
	return LoadConfig(pflag.CommandLine)
}

// LoadConfig bind parsed flags and environment into AppConfig
func LoadConfig(fs *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config = new(AppConfig)
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(AppConfig)
		switch c.Storage.Driver {
		case "mysql", "postgres":
			if c.Database.Host == "" {
				sl.ReportError(c.Database.Host, "database.host", "host", "required", "")
			}
			if c.Database.User == "" {
				sl.ReportError(c.Database.User, "database.username", "username", "required", "")
			}
			fallthrough
		case "sqlite":
			if c.Database.Schema == "" {
				sl.ReportError(c.Database.Schema, "database.schema", "schema", "required", "")
			}
		}
	}, AppConfig{})

	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		case "min":
			msg = append(msg, fmt.Sprintf("%s must be at least %s", fieldName, field.Param()))
		}
	}
	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
