package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"qihuo/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultPrompts []byte

// Template 描述单个角色的提示模板及其输出约束。
type Template struct {
	ID          string         `yaml:"id"`
	Role        string         `yaml:"role"`
	Description string         `yaml:"description"`
	Version     int            `yaml:"version"`
	System      string         `yaml:"system"`
	User        string         `yaml:"user"`
	Schema      map[string]any `yaml:"schema"`

	system *template.Template
	user   *template.Template
	schema *jsonschema.Schema
}

// FileConfig 映射提示文件的顶层结构。
type FileConfig struct {
	Prompts map[string]Template `yaml:"prompts"`
}

// Snapshot 公开的模板快照。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Templates map[string]Template
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理角色提示模板；文件中的模板覆盖内置模板。
type Registry struct {
	path string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewDefaultRegistry 仅使用内置模板。
func NewDefaultRegistry() (*Registry, error) {
	r := &Registry{}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRegistry 读取提示文件并监听更新；文件不存在时退回内置模板。
func NewRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewDefaultRegistry()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("提示文件 %s 不存在，使用内置模板", path)
		return NewDefaultRegistry()
	}
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read prompt file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("prompt reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Templates[normalizeID(id)]
	return tpl, ok
}

// IDs 返回已加载模板的有序 ID 列表。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.snapshot.Templates))
	for id := range r.snapshot.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render 渲染模板的 system 与 user 两段提示。
func (r *Registry) Render(id string, data any) (system, user string, err error) {
	tpl, ok := r.Template(id)
	if !ok {
		return "", "", fmt.Errorf("unknown prompt template: %s", id)
	}
	return tpl.Render(data)
}

func (t Template) Render(data any) (string, string, error) {
	system, err := execute(t.system, data)
	if err != nil {
		return "", "", fmt.Errorf("render %s system: %w", t.ID, err)
	}
	user, err := execute(t.user, data)
	if err != nil {
		return "", "", fmt.Errorf("render %s user: %w", t.ID, err)
	}
	return system, user, nil
}

// Validate 用模板的 JSON Schema 校验解析后的模型输出。
func (t Template) Validate(doc any) error {
	if t.schema == nil {
		return nil
	}
	return t.schema.Validate(doc)
}

func (t Template) HasSchema() bool { return t.schema != nil }

func execute(tpl *template.Template, data any) (string, error) {
	if tpl == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Registry) reload() error {
	base, err := parseFile(defaultPrompts)
	if err != nil {
		return fmt.Errorf("parse builtin prompts failed: %w", err)
	}
	merged := base.Prompts
	if r.path != "" {
		raw, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("read prompt file failed: %w", err)
		}
		custom, err := parseFile(raw)
		if err != nil {
			return fmt.Errorf("parse prompt file failed: %w", err)
		}
		for name, tpl := range custom.Prompts {
			merged[name] = tpl
		}
	}
	templates := make(map[string]Template, len(merged))
	for name, tpl := range merged {
		norm, err := compileTemplate(name, tpl)
		if err != nil {
			return err
		}
		templates[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Templates: templates,
	}
	r.mu.Unlock()
	source := "builtin"
	if r.path != "" {
		source = filepath.Base(r.path)
	}
	logger.Infof("提示模板已加载 %d 个（来源 %s）", len(templates), source)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("prompt listener")
			cb(snap)
		}(fn)
	}
}

func parseFile(raw []byte) (FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, err
	}
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]Template{}
	}
	return cfg, nil
}

func compileTemplate(name string, tpl Template) (Template, error) {
	tpl.ID = normalizeID(tpl.ID)
	if tpl.ID == "" {
		tpl.ID = normalizeID(name)
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	tpl.Role = strings.ToLower(strings.TrimSpace(tpl.Role))
	if strings.TrimSpace(tpl.User) == "" {
		return Template{}, fmt.Errorf("prompt %s has empty user template", tpl.ID)
	}
	var err error
	if tpl.system, err = template.New(tpl.ID + ".system").Funcs(funcs).Parse(tpl.System); err != nil {
		return Template{}, fmt.Errorf("prompt %s system: %w", tpl.ID, err)
	}
	if tpl.user, err = template.New(tpl.ID + ".user").Funcs(funcs).Parse(tpl.User); err != nil {
		return Template{}, fmt.Errorf("prompt %s user: %w", tpl.ID, err)
	}
	if len(tpl.Schema) > 0 {
		if tpl.schema, err = compileSchema(tpl.ID, tpl.Schema); err != nil {
			return Template{}, fmt.Errorf("prompt %s schema: %w", tpl.ID, err)
		}
	}
	return tpl, nil
}

func compileSchema(id string, data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	url := id + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Templates: make(map[string]Template, len(src.Templates)),
	}
	for id, tpl := range src.Templates {
		dst.Templates[id] = tpl
	}
	return dst
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
