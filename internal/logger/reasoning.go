package logger

import (
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

var (
	reasonMu      sync.Mutex
	reasonLog     *log.Logger
	reasonPayload bool
)

// SetReasoningWriter 设置推理调用的独立转储输出；nil 关闭转储。
func SetReasoningWriter(w io.Writer) {
	reasonMu.Lock()
	defer reasonMu.Unlock()
	if w == nil {
		reasonLog = nil
		return
	}
	reasonLog = log.New(w, "", log.LstdFlags)
}

// EnableReasoningPayloadDump controls whether rendered context payloads are dumped too.
func EnableReasoningPayloadDump(enabled bool) {
	reasonMu.Lock()
	reasonPayload = enabled
	reasonMu.Unlock()
}

type dumpSection struct {
	Title string
	Body  string
}

func writeDump(kind, role, provider string, sections []dumpSection) {
	reasonMu.Lock()
	l := reasonLog
	reasonMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[REASON]")
	for _, tag := range []string{kind, role, provider} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(title)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogRoleRequest dumps the prompt sent for one role invocation.
func LogRoleRequest(role, provider, system, user, payload string) {
	sections := []dumpSection{
		{Title: "SYSTEM", Body: system},
		{Title: "USER", Body: user},
	}
	reasonMu.Lock()
	withPayload := reasonPayload
	reasonMu.Unlock()
	if withPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, dumpSection{Title: "PAYLOAD", Body: payload})
	}
	writeDump("request", role, provider, sections)
}

// LogRoleResponse dumps the raw answer of one role invocation.
func LogRoleResponse(role, provider, raw string, elapsed time.Duration, err error) {
	sections := []dumpSection{{Title: "RAW", Body: raw}}
	meta := "elapsed=" + elapsed.Truncate(time.Millisecond).String()
	if err != nil {
		meta += " error=" + err.Error()
	}
	sections = append(sections, dumpSection{Title: "META", Body: meta})
	writeDump("response", role, provider, sections)
}
