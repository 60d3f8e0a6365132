package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qihuo/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// Request 是一次角色调用。Template 为空时使用与 Role 同名的模板。
type Request struct {
	Role     string
	Template string
	Model    string
	Data     any
}

func (r Request) TemplateID() string {
	if r.Template != "" {
		return r.Template
	}
	return r.Role
}

// Response 携带模型原文与提取出的 JSON 对象。
type Response struct {
	Role    string
	Model   string
	Raw     string
	JSON    string
	Elapsed time.Duration

	doc any
}

// Reasoner 是所有推理角色共享的能力。
type Reasoner interface {
	Reason(ctx context.Context, req Request) (Response, error)
}

// Func 让普通函数满足 Reasoner。
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Reason(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// NewResponse 从原始输出中提取 JSON 对象，并把字符串形式的数字还原为数字。
func NewResponse(role, raw string) (Response, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Response{}, fmt.Errorf("%s: no JSON object in response", role)
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Response{}, fmt.Errorf("%s: decode response: %w", role, err)
	}
	return Response{Role: role, Raw: raw, JSON: obj, doc: coerceNumbers(doc)}, nil
}

// Doc 返回已规整的 JSON 文档，供 schema 校验。
func (r Response) Doc() any { return r.doc }

// Decode 把响应解码到 v。
func (r Response) Decode(v any) error {
	b, err := json.Marshal(r.doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", r.Role, err)
	}
	return nil
}

// Get reads one field of the extracted object with gjson path syntax.
func (r Response) Get(path string) gjson.Result {
	return gjson.Get(r.JSON, path)
}
