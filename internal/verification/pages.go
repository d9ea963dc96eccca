package verification

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wellness-service/internal/domain"
)

// The callback listener renders three small static pages. Two stdlib
// templates cover them; the copy differs per subject kind.

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; max-width: 32rem; margin: 4rem auto; text-align: center; }
    h1 { font-size: 1.4rem; }
    p { color: #444; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
</body>
</html>
`))

type pageData struct {
	Title   string
	Message string
}

func renderPage(ctx *fiber.Ctx, status int, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return ctx.Status(status).Send(buf.Bytes())
}

func renderSuccessPage(ctx *fiber.Ctx, kind domain.SubjectType) error {
	data := pageData{
		Title:   "Account confirmed",
		Message: "Thanks! Your account is verified. You can close this tab and return to the app.",
	}
	if kind == domain.SubjectTypeKeeper {
		data.Title = "Keeper account confirmed"
		data.Message = "Thanks! Your keeper account is verified. You can close this tab and return to the app."
	}
	return renderPage(ctx, http.StatusOK, data)
}

func renderErrorPage(ctx *fiber.Ctx) error {
	return renderPage(ctx, http.StatusBadRequest, pageData{
		Title:   "Invalid link",
		Message: "This link is invalid or has expired. Request a new one from the app and try again.",
	})
}

func renderResetLandingPage(ctx *fiber.Ctx) error {
	return renderPage(ctx, http.StatusOK, pageData{
		Title:   "Password reset",
		Message: "Return to the app to choose a new password. This link stays valid for a limited time.",
	})
}
