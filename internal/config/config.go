package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 用于覆盖配置项的环境变量前缀，例如 QIHUO_DEBATE_MAX_ROUNDS。
const EnvPrefix = "QIHUO"

// Load 读取配置文件（含 include），应用默认值并校验。
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	bindEnv(v)
	return decode(v)
}

// FromViper 从已填充的 viper 实例构建配置，供命令行覆盖参数使用。
func FromViper(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnv 让已出现在配置文件中的键可被环境变量覆盖。
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// includeWalker 按深度优先展开 include：被引用文件排在引用者之前，后合并者覆盖先合并者。
type includeWalker struct {
	active map[string]bool
	done   map[string]bool
	order  []string
}

func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &includeWalker{active: map[string]bool{}, done: map[string]bool{}}
	if err := w.visit(abs); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case w.active[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case w.done[path]:
		return nil
	}
	w.active[path] = true
	defer delete(w.active, path)

	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

// readIncludes 读取单个文件的 include 列表；单个字符串视为只含一项的列表。
func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if !v.IsSet("include") {
		return nil, nil
	}
	var out []string
	for _, inc := range v.GetStringSlice("include") {
		if inc = strings.TrimSpace(inc); inc != "" {
			out = append(out, inc)
		}
	}
	return out, nil
}

// collectSettingsKeys 记录配置中显式出现的键（小写点分路径）；列表整体算作一个键。
func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil {
		return
	}
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		m, ok := node.(map[string]any)
		if !ok {
			if prefix != "" {
				dest.mark(prefix)
			}
			return
		}
		for k, child := range m {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if prefix != "" {
				k = prefix + "." + k
			}
			walk(k, child)
		}
	}
	walk("", settings)
}
