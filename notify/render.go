package notify

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/warp/discipline-engine/generic"
)

//go:embed templates/signoff.txt templates/signoff.gohtml
var templateFS embed.FS

const signoffSubject = "Corrective action awaiting your signature"

// Renderer turns the engine's EmailRequest into a sendable message.
type Renderer struct {
	// BaseURL prefixes the sign-off link, e.g. https://portal.example.org.
	BaseURL string

	text *texttmpl.Template
	html *htmltmpl.Template
}

func NewRenderer(baseURL string) (*Renderer, error) {
	text, err := texttmpl.ParseFS(templateFS, "templates/signoff.txt")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse text template")
	}
	html, err := htmltmpl.ParseFS(templateFS, "templates/signoff.gohtml")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse html template")
	}
	return &Renderer{BaseURL: strings.TrimSuffix(baseURL, "/"), text: text, html: html}, nil
}

type signoffData struct {
	EmployeeName string
	CategoryName string
	Severity     generic.SeverityTier
	Points       int
	Level        string
	SignURL      string
}

// SignURL is the page where the employee reviews and signs the record.
func (r *Renderer) SignURL(id generic.RecordID) string {
	return r.BaseURL + "/corrective-actions/" + string(id) + "/sign"
}

// Render builds the outbound message. It is due immediately.
func (r *Renderer) Render(req generic.EmailRequest, now time.Time) (generic.OutboundEmail, error) {
	level := string(req.Level)
	if rung, ok := generic.RungFor(req.Level); ok {
		level = rung.Action
	}
	data := signoffData{
		EmployeeName: req.EmployeeName,
		CategoryName: req.CategoryName,
		Severity:     req.Severity,
		Points:       req.Points,
		Level:        level,
		SignURL:      r.SignURL(req.RecordID),
	}

	var text, html bytes.Buffer
	if err := r.text.Execute(&text, data); err != nil {
		return generic.OutboundEmail{}, goerr.Wrap(err, "failed to render text email", goerr.V("record_id", req.RecordID))
	}
	if err := r.html.Execute(&html, data); err != nil {
		return generic.OutboundEmail{}, goerr.Wrap(err, "failed to render html email", goerr.V("record_id", req.RecordID))
	}

	return generic.OutboundEmail{
		ID:            uuid.NewString(),
		To:            req.To,
		ToName:        req.EmployeeName,
		Subject:       signoffSubject,
		Text:          text.String(),
		HTML:          html.String(),
		RecordID:      req.RecordID,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}
