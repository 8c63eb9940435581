// Package config loads the proxy's configuration from a YAML file with an
// environment-variable overlay, following the teacher's YAML-config
// approach (go-proxy/proxy/main.go's Config struct) layered through
// koanf the way Hola-to-network_logistics_problem's pkg/config does.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment-variable overrides, e.g.
// TPP_SERVER__LISTEN_ADDRESS overrides server.listen_address.
const EnvPrefix = "TPP_"

// Schema holds the loaded configuration. Field names mirror spec.md §6's
// external interface and SPEC_FULL.md §4.7.
type Schema struct {
	Descriptor Descriptor `koanf:"descriptor"`
	Index      Index      `koanf:"index"`
	Codec      Codec      `koanf:"codec"`
	Server     Server     `koanf:"server"`
	Redis      Redis      `koanf:"redis"`
	Log        Log        `koanf:"log"`
}

type Descriptor struct {
	FilePath       string `koanf:"file_path"`
	ReflectAddress string `koanf:"reflect_address"`
}

type Index struct {
	ScanPackagePrefix       string `koanf:"scan_package_prefix"`
	ExcludeSearchAttributes bool   `koanf:"exclude_indexed_attributes_container"`
}

type Codec struct {
	// Strategy selects the codec implementation: "batched-external-store"
	// or "default-inline-transform".
	Strategy string `koanf:"strategy"`
}

type Server struct {
	ListenAddress  string `koanf:"listen_address"`
	BackendAddress string `koanf:"backend_address"`
	TLSCert        string `koanf:"tls_cert"`
	TLSKey         string `koanf:"tls_key"`
}

type Redis struct {
	Address string `koanf:"address"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaults matches spec.md §1's fixed sentinel default for
// scan-package-prefix, selects the default-inline-transform codec, and
// sets info-level JSON logging; every other field defaults to the zero
// value.
func defaults() *koanf.Koanf {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"index.scan_package_prefix": "temporal.api.",
		"codec.strategy":            "default-inline-transform",
		"log.level":                 "info",
		"log.format":                "json",
	}, "."), nil)
	return k
}

// Load reads path as YAML, overlays TPP_-prefixed environment variables,
// and unmarshals into a Schema. A double underscore crosses from the
// top-level section into its field, so TPP_SERVER__LISTEN_ADDRESS maps
// to server.listen_address; the leaf name's own underscores are left
// alone.
func Load(path string) (*Schema, error) {
	k := defaults()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		s = strings.Replace(s, "__", ".", 1)
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment overlay: %w", err)
	}

	var out Schema
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if out.Descriptor.FilePath == "" && out.Descriptor.ReflectAddress == "" {
		return nil, fmt.Errorf("config: one of descriptor.file_path or descriptor.reflect_address is required")
	}
	if out.Server.ListenAddress == "" {
		return nil, fmt.Errorf("config: server.listen_address is required")
	}
	if out.Server.BackendAddress == "" {
		return nil, fmt.Errorf("config: server.backend_address is required")
	}
	if out.Codec.Strategy == "batched-external-store" && out.Redis.Address == "" {
		return nil, fmt.Errorf("config: redis.address is required for codec.strategy=batched-external-store")
	}

	return &out, nil
}
