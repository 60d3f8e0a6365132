package reasoning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Step 是脚本中的一次预设回答。
type Step struct {
	Raw   string        `yaml:"raw"`
	Error string        `yaml:"error"`
	Delay time.Duration `yaml:"delay"`
}

// ScriptedReasoner 按角色依次回放预设回答，最后一步会重复使用。
// Keys are template ids first, then roles.
type ScriptedReasoner struct {
	mu      sync.Mutex
	scripts map[string][]Step
	pos     map[string]int
	calls   map[string]int
}

func NewScriptedReasoner(scripts map[string][]Step) *ScriptedReasoner {
	return &ScriptedReasoner{
		scripts: scripts,
		pos:     make(map[string]int),
		calls:   make(map[string]int),
	}
}

// LoadScript 读取 YAML 脚本文件：顶层为 key -> steps 列表。
func LoadScript(path string) (*ScriptedReasoner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reasoning script failed: %w", err)
	}
	var scripts map[string][]Step
	if err := yaml.Unmarshal(raw, &scripts); err != nil {
		return nil, fmt.Errorf("parse reasoning script failed: %w", err)
	}
	normalized := make(map[string][]Step, len(scripts))
	for k, steps := range scripts {
		normalized[strings.ToLower(strings.TrimSpace(k))] = steps
	}
	return NewScriptedReasoner(normalized), nil
}

func (s *ScriptedReasoner) next(req Request) (Step, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{req.Template, req.Role} {
		steps, ok := s.scripts[key]
		if key == "" || !ok || len(steps) == 0 {
			continue
		}
		idx := s.pos[key]
		if idx >= len(steps) {
			idx = len(steps) - 1
		}
		s.pos[key] = idx + 1
		s.calls[req.Role]++
		return steps[idx], key, true
	}
	return Step{}, "", false
}

func (s *ScriptedReasoner) Reason(ctx context.Context, req Request) (Response, error) {
	step, key, ok := s.next(req)
	if !ok {
		return Response{}, fmt.Errorf("no scripted response for %s", req.TemplateID())
	}
	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Error != "" {
		return Response{}, errors.New(step.Error)
	}
	resp, err := NewResponse(req.Role, step.Raw)
	if err != nil {
		return Response{}, err
	}
	resp.Model = "script:" + key
	return resp, nil
}

// Calls 返回某角色被调用的次数。
func (s *ScriptedReasoner) Calls(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}
