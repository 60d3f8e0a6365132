package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"qihuo/internal/gateway/provider"
	"qihuo/internal/logger"
	"qihuo/internal/pkg/jsonutil"
	"qihuo/internal/prompt"

	"github.com/tidwall/gjson"
)

// LLMReasoner 渲染角色模板、调用模型、提取 JSON 并按模板 schema 校验。
type LLMReasoner struct {
	registry  *prompt.Registry
	providers map[string]provider.ModelProvider
	roles     map[string]string
	fallback  string
}

// NewLLMReasoner: roles maps a role to a model id; roles without a binding use fallback.
func NewLLMReasoner(registry *prompt.Registry, providers map[string]provider.ModelProvider, roles map[string]string, fallback string) *LLMReasoner {
	return &LLMReasoner{registry: registry, providers: providers, roles: roles, fallback: fallback}
}

func (l *LLMReasoner) resolve(req Request) (provider.ModelProvider, error) {
	id := strings.TrimSpace(req.Model)
	if id == "" {
		id = l.roles[req.Role]
	}
	if id == "" {
		id = l.fallback
	}
	p, ok := l.providers[id]
	if !ok {
		return nil, fmt.Errorf("no reasoning model configured for role %s (model=%q)", req.Role, id)
	}
	return p, nil
}

func (l *LLMReasoner) Reason(ctx context.Context, req Request) (Response, error) {
	p, err := l.resolve(req)
	if err != nil {
		return Response{}, err
	}
	tpl, ok := l.registry.Template(req.TemplateID())
	if !ok && req.Template != "" {
		// 自定义模块未提供专用模板时退回角色通用模板
		tpl, ok = l.registry.Template(req.Role)
	}
	if !ok {
		return Response{}, fmt.Errorf("unknown prompt template: %s", req.TemplateID())
	}
	system, user, err := tpl.Render(req.Data)
	if err != nil {
		return Response{}, err
	}
	logger.LogRoleRequest(req.Role, p.ID(), system, user, payloadDump(req.Data))

	start := time.Now()
	raw, err := p.Call(ctx, provider.ChatPayload{System: system, User: user, ExpectJSON: true})
	elapsed := time.Since(start)
	logger.LogRoleResponse(req.Role, p.ID(), raw, elapsed, err)
	if err != nil {
		return Response{}, fmt.Errorf("%s call %s: %w", req.Role, p.ID(), err)
	}
	resp, err := NewResponse(req.Role, raw)
	if err != nil {
		return Response{}, err
	}
	if err := precheck(resp); err != nil {
		return Response{}, err
	}
	if err := tpl.Validate(resp.Doc()); err != nil {
		return Response{}, fmt.Errorf("%s response violates schema: %w", req.Role, err)
	}
	resp.Model = p.ID()
	resp.Elapsed = elapsed
	logger.With("role", req.Role, "model", p.ID()).Debugf("推理完成 耗时=%s", elapsed.Truncate(time.Millisecond))
	return resp, nil
}

// precheck 在 schema 校验前拒绝类型明显错误的置信度；"0.7"、"70%" 这类字符串交给数字规整。
func precheck(resp Response) error {
	c := resp.Get("confidence")
	if !c.Exists() {
		return nil
	}
	if c.Type != gjson.Number && c.Type != gjson.String {
		return fmt.Errorf("%s: confidence is %s, want number", resp.Role, c.Type)
	}
	return nil
}

// payloadDump 把模板上下文排版成 JSON，写入推理转储的 PAYLOAD 段。
func payloadDump(data any) string {
	if data == nil {
		return ""
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return jsonutil.Pretty(string(b))
}
