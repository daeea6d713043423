package orabridge

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/semihalev/go-orabridge/nca"
)

// Defaults for Config.
const (
	DefaultFetchArraySize   = 100
	DefaultMaxOutSize       = 200
	DefaultMaxFetchAsString = 200
	DefaultQueueDepth       = 256
)

// OutFormat selects the row shape returned by queries.
type OutFormat int

const (
	// OutFormatDefault inherits the configured format; in a Config it means
	// OutFormatArray.
	OutFormatDefault OutFormat = iota
	// OutFormatArray returns each row as []any in column order.
	OutFormatArray
	// OutFormatObject returns each row as map[string]any keyed by column name.
	OutFormatObject
)

// Config is consumed by an Env and inherited by its connections.
type Config struct {
	// FetchArraySize is the number of rows fetched per native round trip.
	FetchArraySize uint32 `mapstructure:"fetch_array_size"`
	// MaxRows caps the rows returned by a non-ResultSet query; 0 is unlimited.
	MaxRows uint32 `mapstructure:"max_rows"`
	// DefaultMaxOutSize is the maxSize of string OUT binds that omit one.
	DefaultMaxOutSize uint32 `mapstructure:"default_max_out_size"`
	// LobPieceSize is the LOB read and write piece size; 0 uses the chunk size.
	LobPieceSize uint32 `mapstructure:"lob_piece_size"`
	// FetchAsString lists database types returned as strings.
	FetchAsString []nca.DBType `mapstructure:"fetch_as_string"`
	// FetchAsBuffer lists database types returned as []byte.
	FetchAsBuffer []nca.DBType `mapstructure:"fetch_as_buffer"`
	OutFormat     OutFormat    `mapstructure:"out_format"`
	// Workers is the size of the worker pool running native calls.
	Workers int `mapstructure:"workers"`
	// QueueDepth bounds the tasks queued or running at once.
	QueueDepth int    `mapstructure:"queue_depth"`
	LogLevel   string `mapstructure:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FetchArraySize:    DefaultFetchArraySize,
		DefaultMaxOutSize: DefaultMaxOutSize,
		Workers:           runtime.GOMAXPROCS(0),
		QueueDepth:        DefaultQueueDepth,
		LogLevel:          "info",
	}
}

func (c Config) validate() error {
	if c.FetchArraySize == 0 {
		return usageError(5, "invalid value for parameter %s", "fetch_array_size")
	}
	if c.Workers < 1 {
		return usageError(5, "invalid value for parameter %s", "workers")
	}
	if c.QueueDepth < c.Workers {
		return usageError(5, "invalid value for parameter %s", "queue_depth")
	}
	for _, t := range c.FetchAsString {
		if !fetchAsStringAllowed(t) {
			return usageError(21, "invalid type for conversion specified: %s", t)
		}
	}
	for _, t := range c.FetchAsBuffer {
		if t != nca.DBTypeBlob {
			return usageError(21, "invalid type for conversion specified: %s", t)
		}
	}
	return nil
}

func fetchAsStringAllowed(t nca.DBType) bool {
	switch t {
	case nca.DBTypeNumber, nca.DBTypeDate, nca.DBTypeTimestamp, nca.DBTypeTimestampTZ,
		nca.DBTypeTimestampLTZ, nca.DBTypeRaw, nca.DBTypeClob, nca.DBTypeNClob,
		nca.DBTypeBinaryDouble, nca.DBTypeBinaryFloat, nca.DBTypeJSON:
		return true
	}
	return false
}

var dbTypeByName = map[string]nca.DBType{
	"string":    nca.DBTypeVarchar,
	"varchar":   nca.DBTypeVarchar,
	"varchar2":  nca.DBTypeVarchar,
	"number":    nca.DBTypeNumber,
	"date":      nca.DBTypeDate,
	"timestamp": nca.DBTypeTimestamp,
	"raw":       nca.DBTypeRaw,
	"buffer":    nca.DBTypeRaw,
	"clob":      nca.DBTypeClob,
	"nclob":     nca.DBTypeNClob,
	"blob":      nca.DBTypeBlob,
	"json":      nca.DBTypeJSON,
	"double":    nca.DBTypeBinaryDouble,
	"float":     nca.DBTypeBinaryFloat,
}

// stringToDBTypeHook decodes type names such as "number" or "clob".
func stringToDBTypeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(nca.DBType(0)) {
		return data, nil
	}
	t, ok := dbTypeByName[strings.ToLower(strings.TrimSpace(data.(string)))]
	if !ok {
		return nil, errors.Errorf("unknown database type %q", data)
	}
	return t, nil
}

func stringToOutFormatHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(OutFormat(0)) {
		return data, nil
	}
	switch strings.ToLower(data.(string)) {
	case "":
		return OutFormatDefault, nil
	case "array":
		return OutFormatArray, nil
	case "object":
		return OutFormatObject, nil
	}
	return nil, errors.Errorf("unknown out format %q", data)
}

// ConfigFromMap decodes settings over DefaultConfig. Keys use the
// mapstructure tags of Config; string values are converted as needed, and
// comma-separated strings populate the type lists.
func ConfigFromMap(m map[string]any) (Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			stringToDBTypeHook,
			stringToOutFormatHook,
		),
	})
	if err != nil {
		return cfg, errors.Wrap(err, "config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.validate()
}
