package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lysyi3m/bid-comb/app/bid"
)

const textBody = `입찰공고 {{len .Entries}}건이 조건과 일치합니다.
{{range $i, $e := .Entries}}
{{inc $i}}. {{$e.Notice.Title}}
   기관: {{$e.Notice.Agency}}
{{- with $e.Notice.Region}}
   지역: {{.}}{{end}}
{{- with $e.Notice.Category}}
   분류: {{.}}{{end}}
   예산: {{budget $e.Notice.Budget}}
   마감: {{deadline $e.Notice.Deadline}}
{{- if $e.MatchedKeywords}}
   키워드: {{join $e.MatchedKeywords ", "}}{{end}}
   {{$e.Notice.URL}}
{{end}}`

const htmlBody = `<!DOCTYPE html>
<html lang="ko">
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
<p>입찰공고 <strong>{{len .Entries}}건</strong>이 조건과 일치합니다.</p>
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse:collapse">
<tr><th>공고명</th><th>기관</th><th>지역</th><th>분류</th><th>예산</th><th>마감</th><th>키워드</th></tr>
{{range .Entries}}<tr>
<td><a href="{{.Notice.URL}}">{{.Notice.Title}}</a></td>
<td>{{.Notice.Agency}}</td>
<td>{{with .Notice.Region}}{{.}}{{else}}-{{end}}</td>
<td>{{with .Notice.Category}}{{.}}{{else}}-{{end}}</td>
<td>{{budget .Notice.Budget}}</td>
<td>{{deadline .Notice.Deadline}}</td>
<td>{{join .MatchedKeywords ", "}}</td>
</tr>
{{end}}</table>
</body>
</html>
`

// Digest is a rendered digest ready for MIME composition.
type Digest struct {
	Subject string
	Text    string
	HTML    string
}

type Renderer struct {
	prefix   string
	location *time.Location
	text     *texttemplate.Template
	html     *htmltemplate.Template
}

func NewRenderer(subjectPrefix string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}

	printer := message.NewPrinter(language.Korean)
	funcs := map[string]any{
		"inc":  func(i int) int { return i + 1 },
		"join": strings.Join,
		"budget": func(v *uint64) string {
			if v == nil {
				return "미공개"
			}
			return printer.Sprintf("%d원", *v)
		},
		"deadline": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.In(loc).Format("2006-01-02 15:04")
		},
	}

	return &Renderer{
		prefix:   strings.TrimSpace(subjectPrefix),
		location: loc,
		text:     texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(textBody)),
		html:     htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(htmlBody)),
	}
}

func (r *Renderer) Subject(count int, now time.Time) string {
	subject := fmt.Sprintf("입찰공고 %d건 (%s)", count, now.In(r.location).Format("2006-01-02"))
	if r.prefix == "" {
		return subject
	}
	return fmt.Sprintf("[%s] %s", r.prefix, subject)
}

func (r *Renderer) Run(entries []bid.DigestEntry, now time.Time) (Digest, error) {
	data := struct {
		Subject string
		Entries []bid.DigestEntry
	}{
		Subject: r.Subject(len(entries), now),
		Entries: entries,
	}

	var text bytes.Buffer
	if err := r.text.Execute(&text, data); err != nil {
		return Digest{}, fmt.Errorf("failed to render text body: %w", err)
	}

	var html bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return Digest{}, fmt.Errorf("failed to render HTML body: %w", err)
	}

	return Digest{Subject: data.Subject, Text: text.String(), HTML: html.String()}, nil
}
