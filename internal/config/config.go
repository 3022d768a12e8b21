// Package config provides typed access to the INI configuration files that
// drive the pipeline: per-site watch lists, database credentials and the
// similarity-service key. The file layout and search order mirror the
// original Python configparser-based tool so an operator's existing
// .copypatrol.ini keeps working unchanged.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// PackageConfigPaths returns the search order for the package (site/tca)
// configuration file: the user's home directory first, then the current
// directory, last-file-wins (matching configparser.ConfigParser.read).
func PackageConfigPaths() []string {
	home, _ := os.UserHomeDir()
	paths := []string{".copypatrol.ini"}
	if home != "" {
		paths = []string{filepath.Join(home, ".copypatrol.ini"), ".copypatrol.ini"}
	}
	return paths
}

// DatabaseConfigPaths returns the search order for database credentials:
// replica.my.cnf, then .my.cnf, then the package config paths, the same
// chain the original tool used on Toolforge. Files are read in this order
// and a key set in a later file overrides the same key from an earlier one.
func DatabaseConfigPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string
	if home != "" {
		paths = append(paths, filepath.Join(home, "replica.my.cnf"), filepath.Join(home, ".my.cnf"))
	}
	paths = append(paths, PackageConfigPaths()...)
	return paths
}

// DatabaseConfig holds [client] section credentials.
type DatabaseConfig struct {
	DriverName string
	Username   string
	Password   string
	Host       string
	Port       int
	Database   string
}

// SiteConfig holds one [copypatrol:<domain>] section.
type SiteConfig struct {
	Domain               string
	Enabled              bool
	Namespaces           []int
	PagetriageNamespaces []int
}

// TCAConfig holds the [tca] section: similarity-service domain and key.
type TCAConfig struct {
	Domain string
	Key    string
}

// InfraConfig holds ambient deployment settings under [copypatrol:infra],
// not part of the original tool but needed to wire Redis/Kafka/Elasticsearch/
// metrics for this Go rewrite.
type InfraConfig struct {
	RedisURL         string
	KafkaBrokers     []string
	ElasticsearchURL string
	MetricsPort      int
	MaxRetries       int
	DigestEnabled    bool
	DigestToAddress  string
}

// Config is the fully loaded, validated configuration for one process.
type Config struct {
	Database        DatabaseConfig
	TCA             TCAConfig
	IgnoreListTitle string
	Infra           InfraConfig
	sites           map[string]SiteConfig
}

// loadFiles loads the given paths (in order, later files override earlier
// keys within the same section — ini.v1's LoadSources composes this way)
// into one *ini.File. Missing files are skipped, matching configparser.read.
func loadFiles(paths []string) (*ini.File, error) {
	cfg := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: false})
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := cfg.Append(p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
	}
	return cfg, nil
}

// Load reads the database config, site configs and TCA config from their
// respective search paths and returns a validated Config.
func Load() (*Config, error) {
	dbFile, err := loadFiles(DatabaseConfigPaths())
	if err != nil {
		return nil, err
	}
	pkgFile, err := loadFiles(PackageConfigPaths())
	if err != nil {
		return nil, err
	}

	db, err := parseDatabaseConfig(dbFile)
	if err != nil {
		return nil, err
	}

	tca, err := parseTCAConfig(pkgFile)
	if err != nil {
		return nil, err
	}

	sites := parseSiteConfigs(pkgFile)

	c := &Config{
		Database:        db,
		TCA:             tca,
		IgnoreListTitle: pkgFile.Section("copypatrol").Key("ignore-list-title").String(),
		Infra:           parseInfraConfig(pkgFile),
		sites:           sites,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDatabaseConfig(f *ini.File) (DatabaseConfig, error) {
	sec := f.Section("client")
	drivername := sec.Key("drivername").String()
	if drivername == "" {
		return DatabaseConfig{}, fmt.Errorf("config: [client] drivername is required")
	}
	username := sec.Key("username").String()
	if username == "" {
		username = sec.Key("user").String()
	}
	port, _ := strconv.Atoi(sec.Key("port").String())
	return DatabaseConfig{
		DriverName: drivername,
		Username:   username,
		Password:   sec.Key("password").String(),
		Host:       sec.Key("host").String(),
		Port:       port,
		Database:   sec.Key("database").String(),
	}, nil
}

func parseTCAConfig(f *ini.File) (TCAConfig, error) {
	sec := f.Section("tca")
	domain := sec.Key("domain").String()
	key := sec.Key("key").String()
	if domain == "" || key == "" {
		return TCAConfig{}, fmt.Errorf("config: [tca] domain and key are required")
	}
	return TCAConfig{Domain: domain, Key: key}, nil
}

func parseIntList(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	return result
}

func parseSiteConfigs(f *ini.File) map[string]SiteConfig {
	sites := make(map[string]SiteConfig)
	for _, sec := range f.Sections() {
		domain, ok := strings.CutPrefix(sec.Name(), "copypatrol:")
		if !ok || domain == "infra" {
			continue
		}
		sites[domain] = SiteConfig{
			Domain:               domain,
			Enabled:              sec.Key("enabled").MustBool(false),
			Namespaces:           parseIntList(sec.Key("namespaces").String()),
			PagetriageNamespaces: parseIntList(sec.Key("pagetriage-namespaces").String()),
		}
	}
	return sites
}

func parseInfraConfig(f *ini.File) InfraConfig {
	sec := f.Section("copypatrol:infra")
	infra := InfraConfig{
		RedisURL:         sec.Key("redis-url").MustString("redis://localhost:6379"),
		KafkaBrokers:     splitOrDefault(sec.Key("kafka-brokers").String(), []string{"localhost:9092"}),
		ElasticsearchURL: sec.Key("elasticsearch-url").MustString("http://localhost:9200"),
		MetricsPort:      sec.Key("metrics-port").MustInt(2112),
		MaxRetries:       sec.Key("max-retries").MustInt(5),
		DigestEnabled:    sec.Key("digest-enabled").MustBool(false),
		DigestToAddress:  sec.Key("digest-to").String(),
	}
	return infra
}

func splitOrDefault(raw string, def []string) []string {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return def
	}
	return result
}

// NewWithSites builds a Config from an explicit site map, bypassing file
// loading. Used by other packages' tests that need a Config without an
// on-disk ini file.
func NewWithSites(sites map[string]SiteConfig) *Config {
	return &Config{sites: sites}
}

// Domains returns the enabled domains, i.e. the ones with
// [copypatrol:<domain>] enabled=true.
func (c *Config) Domains() []string {
	var domains []string
	for domain, sc := range c.sites {
		if sc.Enabled {
			domains = append(domains, domain)
		}
	}
	return domains
}

// SiteConfig returns the configuration for domain, if any.
func (c *Config) SiteConfig(domain string) (SiteConfig, bool) {
	sc, ok := c.sites[domain]
	return sc, ok
}

func (c *Config) validate() error {
	if len(c.Domains()) == 0 {
		return fmt.Errorf("config: no enabled [copypatrol:<domain>] sections found")
	}
	return nil
}
