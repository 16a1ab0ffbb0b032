package config

import "errors"

// Static errors for configuration package
var (
	ErrFileNotFound          = errors.New("configuration file not found")
	ErrUnsupportedFileFormat = errors.New("unsupported configuration file format")
	ErrParseFile             = errors.New("failed to parse configuration file")
	ErrProviderFailed        = errors.New("configuration provider failed")
	ErrBindTargetNotPointer  = errors.New("bind target must be a non-nil pointer")
	ErrBindTargetNotStruct   = errors.New("bind target must point to a struct")
	ErrBindConversion        = errors.New("cannot convert configuration value")
	ErrUnsupportedFieldType  = errors.New("unsupported field type for binding")
)
