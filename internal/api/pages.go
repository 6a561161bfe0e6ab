package api

import (
	"fmt"
	"html"
	"net/http"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/httputil"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
</head>
<body style="margin:0;padding:48px 16px;background-color:#f4f4f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
<div style="max-width:480px;margin:0 auto;background:#ffffff;border-radius:8px;padding:32px;text-align:center;">
<h1 style="margin:0 0 16px;color:#1a1a2e;font-size:22px;">%s</h1>
<p style="margin:0;color:#444455;font-size:15px;line-height:1.6;">%s</p>
</div>
</body>
</html>
`

// writePage renders a human-readable HTML page for the verify and
// unsubscribe endpoints.
func writePage(w http.ResponseWriter, status int, title, message string) {
	httputil.HTML(w, status, fmt.Sprintf(pageTemplate,
		html.EscapeString(title),
		html.EscapeString(title),
		html.EscapeString(message)))
}
