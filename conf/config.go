package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// ConfigPath is the directory command-line args resolve a relative
// config file name against, mirroring the global the rest of the stack
// reads during startup.
var ConfigPath string

// CommandLineArgs carries the flags cmd/cimdump parses before loading
// configuration.
type CommandLineArgs struct {
	ConfigPath string
}

// Cfg holds every tunable the repository core and CLI accept. Every
// field has a usable zero-config default from NewCfg.
type Cfg struct {
	Raw *ini.File

	// CacheSize bounds the number of decoded pages kept in memory across
	// the index and objects files combined. 0 disables the page cache.
	CacheSize int

	// PreferGenerationSelector forces the Mapping.ver/Mapping<N>.map
	// discovery path even when bare Index.map/Objects.map are present.
	PreferGenerationSelector bool

	LogPath  string
	LogLevel string
}

// NewCfg returns the default configuration: no page cache, bare mapping
// file names preferred, info-level logging to stderr.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                      ini.Empty(),
		CacheSize:                0,
		PreferGenerationSelector: false,
		LogLevel:                 "info",
	}
}

// Load reads an INI file named by args.ConfigPath (or "cimdump.ini" in
// the current directory if unset) and overlays its [cim] section onto
// the defaults. A missing file is not an error: the defaults stand.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	setHomePath(args)

	path := args.ConfigPath
	if path == "" {
		path = filepath.Join(ConfigPath, "cimdump.ini")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Raw = iniFile

	section := iniFile.Section("cim")
	cfg.CacheSize = section.Key("cache_size").MustInt(cfg.CacheSize)
	cfg.PreferGenerationSelector = section.Key("prefer_generation_selector").MustBool(cfg.PreferGenerationSelector)
	cfg.LogPath = section.Key("log_path").MustString(cfg.LogPath)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)

	return cfg, nil
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = filepath.Dir(args.ConfigPath)
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}
