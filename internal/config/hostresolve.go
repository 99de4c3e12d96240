package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// HostSources lists the config-file search path, first hit wins, per §6's
// "Config file discovery" entry. Resolved once by ResolveClientHost for CLI
// clients of this service; the server itself never reads these files.
func HostSources(xdgConfigHome, userConfigDir, frevaConfigEnv, systemDataDir string) []string {
	var out []string
	if xdgConfigHome != "" {
		out = append(out, filepath.Join(xdgConfigHome, "freva", "freva.toml"))
	}
	if userConfigDir != "" {
		out = append(out, filepath.Join(userConfigDir, "freva.toml"))
	}
	if frevaConfigEnv != "" {
		out = append(out, frevaConfigEnv)
	}
	if systemDataDir != "" {
		out = append(out,
			filepath.Join(systemDataDir, "freva.toml"),
			filepath.Join(systemDataDir, "evaluation_system.conf"),
		)
	}
	return out
}

// tomlHostConfig is the subset of freva.toml this resolver reads.
type tomlHostConfig struct {
	Databrowser struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"databrowser"`
	Solr struct {
		Host string `toml:"host"`
	} `toml:"solr"`
}

// ResolveClientHost walks sources in order and returns the first
// successfully parsed and normalized databrowser host it finds. Resolves
// Open Question (ii): two overlapping host-parser implementations exist in
// the original source; this is the canonical one (split on "://", default
// scheme http, strip path, append "/api/databrowser").
func ResolveClientHost(sources []string) (string, bool) {
	for _, path := range sources {
		raw, ok := readHostFromFile(path)
		if ok {
			return NormalizeHost(raw), true
		}
	}
	return "", false
}

func readHostFromFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	if strings.HasSuffix(path, ".conf") {
		return readLegacyINIHost(data)
	}

	var cfg tomlHostConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return "", false
	}
	if cfg.Databrowser.Host != "" {
		host := cfg.Databrowser.Host
		if cfg.Databrowser.Port != 0 {
			host = host + ":" + strconv.Itoa(cfg.Databrowser.Port)
		}
		return host, true
	}
	if cfg.Solr.Host != "" {
		return cfg.Solr.Host, true
	}
	return "", false
}

// readLegacyINIHost scans a legacy evaluation_system.conf for
// "databrowser.host"/"databrowser.port" or "solr.host" key = value lines.
// No ini-parsing library appears anywhere in the retrieval pack for this
// single-section, flat key=value legacy format, so a bufio.Scanner line
// walk is used instead (see DESIGN.md).
func readLegacyINIHost(data []byte) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	values := make(map[string]string)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if host, ok := values["databrowser.host"]; ok {
		if port, ok := values["databrowser.port"]; ok {
			return host + ":" + port, true
		}
		return host, true
	}
	if host, ok := values["solr.host"]; ok {
		return host, true
	}
	return "", false
}

// NormalizeHost applies the canonical host-parser: if raw carries no
// scheme, assume http; strip any path component; append "/api/databrowser".
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	scheme := "http"
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme = raw[:idx]
		rest = raw[idx+3:]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	return scheme + "://" + rest + "/api/databrowser"
}
