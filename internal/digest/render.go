package digest

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer turns a Digest into the HTML newsletter body and its
// plain-text alternate. Templates are Liquid, parsed once and cached;
// per-recipient variables (the unsubscribe link) are bound at render
// time.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template name -> *liquid.Template
}

// NewRenderer creates a renderer with the digest's custom filters
// registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
	engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})
	// Tweet bodies carry literal newlines; HTML needs breaks.
	engine.RegisterFilter("newline_to_br", func(s string) string {
		return strings.ReplaceAll(s, "\n", "<br>")
	})

	return &Renderer{engine: engine}
}

// HTML renders the newsletter body. unsubscribeURL is per-recipient;
// pass the empty string for the archived copy.
func (r *Renderer) HTML(d *Digest, unsubscribeURL string) (string, error) {
	return r.render("html", htmlTemplate, r.bindings(d, unsubscribeURL))
}

// Text renders the plain-text alternate.
func (r *Renderer) Text(d *Digest, unsubscribeURL string) (string, error) {
	return r.render("text", textTemplate, r.bindings(d, unsubscribeURL))
}

func (r *Renderer) render(name, source string, bindings map[string]interface{}) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(name); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("digest: parse %s template: %w", name, err)
		}
		r.cache.Store(name, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("digest: render %s: %w", name, err)
	}
	return out, nil
}

func (r *Renderer) bindings(d *Digest, unsubscribeURL string) map[string]interface{} {
	start, end := d.WeekWindow()

	categories := make([]map[string]interface{}, 0, len(d.Categories))
	for _, c := range d.Categories {
		tweets := make([]map[string]interface{}, 0, len(c.Tweets))
		for _, t := range c.Tweets {
			tweets = append(tweets, map[string]interface{}{
				"author": t.Author,
				"text":   t.Text,
				"url":    t.URL,
			})
		}
		categories = append(categories, map[string]interface{}{
			"title":   c.L1,
			"summary": c.Summary,
			"tweets":  tweets,
		})
	}

	return map[string]interface{}{
		"title":           "GenAI Weekly Digest",
		"week_start":      start.Format("January 2"),
		"week_end":        end.Format("January 2, 2006"),
		"categories":      categories,
		"unsubscribe_url": unsubscribeURL,
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{ title | escape }}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f7;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;background-color:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background-color:#1a1a2e;padding:32px 24px;text-align:center;">
<h1 style="margin:0;color:#ffffff;font-size:24px;">{{ title | escape }}</h1>
<p style="margin:8px 0 0;color:#a0a0c0;font-size:14px;">{{ week_start }} &ndash; {{ week_end }}</p>
</td></tr>
{% for category in categories %}
<tr><td style="padding:24px;border-bottom:1px solid #ececf1;">
<h2 style="margin:0 0 12px;color:#1a1a2e;font-size:18px;">{{ category.title | escape }}</h2>
<p style="margin:0 0 16px;color:#444455;font-size:14px;line-height:1.6;">{{ category.summary | escape | newline_to_br }}</p>
{% for tweet in category.tweets %}
<div style="margin:0 0 12px;padding:12px;background-color:#f8f8fc;border-radius:6px;">
<p style="margin:0 0 6px;color:#333344;font-size:13px;line-height:1.5;">{{ tweet.text | escape | newline_to_br }}</p>
<a href="{{ tweet.url }}" style="color:#4a6cf7;font-size:12px;text-decoration:none;">@{{ tweet.author | escape }}</a>
</div>
{% endfor %}
</td></tr>
{% endfor %}
<tr><td style="padding:24px;text-align:center;background-color:#fafafc;">
{% if unsubscribe_url != "" %}
<p style="margin:0;color:#888899;font-size:12px;">You receive this because you verified your subscription.<br>
<a href="{{ unsubscribe_url }}" style="color:#888899;">Unsubscribe</a></p>
{% endif %}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`

const textTemplate = `{{ title }}
{{ week_start }} - {{ week_end }}
{% for category in categories %}
== {{ category.title }} ==

{{ category.summary }}
{% for tweet in category.tweets %}
- @{{ tweet.author }}: {{ tweet.text | truncate: 200 }}
  {{ tweet.url }}
{% endfor %}{% endfor %}
{% if unsubscribe_url != "" %}
Unsubscribe: {{ unsubscribe_url }}
{% endif %}`
