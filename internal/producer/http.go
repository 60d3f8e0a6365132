package producer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"qihuo/internal/types"

	"github.com/tidwall/gjson"
)

// HTTPProducer 调用外部分析服务：GET url?instrument=..&as_of=..
// 响应格式 {"status":"ok","signal":"bullish","confidence":0.6,"rationale":"..."}。
type HTTPProducer struct {
	id     string
	url    string
	client *http.Client
}

func NewHTTPProducer(id, endpoint string, client *http.Client) *HTTPProducer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProducer{id: id, url: endpoint, client: client}
}

func (p *HTTPProducer) ID() string { return p.id }

func (p *HTTPProducer) Produce(ctx context.Context, q Query) (Output, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return Output{}, fmt.Errorf("invalid url: %w", err)
	}
	params := u.Query()
	params.Set("instrument", q.Instrument)
	params.Set("as_of", q.AsOfDate())
	params.Set("producer", p.id)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Output{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return Output{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Output{}, err
	}
	if resp.StatusCode/100 != 2 {
		return Output{}, fmt.Errorf("status=%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return Output{}, fmt.Errorf("response is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	if status := strings.ToLower(res.Get("status").String()); status != "" && status != "ok" && status != "success" {
		msg := res.Get("error").String()
		if msg == "" {
			msg = status
		}
		return Output{}, fmt.Errorf("service reported failure: %s", msg)
	}
	sig, ok := types.ParseSignal(res.Get("signal").String())
	if !ok {
		return Output{}, fmt.Errorf("unrecognised signal %q", res.Get("signal").String())
	}
	conf := res.Get("confidence")
	if !conf.Exists() {
		return Output{}, fmt.Errorf("missing confidence")
	}
	return Output{Signal: sig, Confidence: conf.Float(), Rationale: res.Get("rationale").String()}, nil
}
