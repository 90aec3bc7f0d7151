// Package pdf renders application records into print-matching PDF documents.
//
// Rendering happens in two stages: the record is interpolated into a fixed
// HTML layout with every image inlined as a data URI, then a headless Chrome
// instance rasterizes that self-contained document to A4 PDF bytes. The
// bytes live only in memory; nothing is ever written to durable storage.
package pdf

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/formsdesk/formsdesk/internal/app/domain/record"
	"github.com/formsdesk/formsdesk/internal/app/metrics"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed assets/logo.png
var logoPNG []byte

// A4 dimensions in inches for page.PrintToPDF.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// RenderError wraps any failure inside the rendering pipeline. Callers must
// not retry automatically; the data may be fine and a broken browser launch
// only gets more expensive on repeat.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("pdf render failed at %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer turns validated records into PDF byte buffers. Each Render call
// launches and tears down its own browser instance; no state is shared
// between invocations.
type Renderer struct {
	execPath  string
	log       *logger.Logger
	templates *template.Template
}

// New builds a renderer. execPath locates the headless Chrome executable;
// empty means chromedp's default lookup.
func New(execPath string, log *logger.Logger) (*Renderer, error) {
	if log == nil {
		log = logger.NewDefault("pdf")
	}
	tpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout templates: %w", err)
	}
	return &Renderer{execPath: execPath, log: log, templates: tpl}, nil
}

// templateData is what layout templates see.
type templateData struct {
	Logo template.URL
	Data record.Data
}

// Signature returns a data field as an inline image URL, or "" when the
// field holds no usable signature. Validation has already bounded and
// shape-checked the payload.
func (d templateData) Signature(key string) template.URL {
	v := d.Data.String(key)
	if !strings.HasPrefix(v, "data:image/") {
		return ""
	}
	return template.URL(v)
}

// Field returns a data field as display text.
func (d templateData) Field(key string) string {
	switch v := d.Data[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// BuildHTML interpolates the record into its layout template. The result is
// fully self-contained: the logo and every signature are inlined, so the
// browser never reaches for the network or the filesystem.
func (r *Renderer) BuildHTML(rec record.Record) (string, error) {
	name := templateName(rec.Type)
	if name == "" {
		// Validation excludes unknown types before this point; reaching here
		// is a programming-contract violation.
		return "", &RenderError{Stage: "template", Err: fmt.Errorf("no layout registered for form type %q", rec.Type)}
	}

	data := templateData{
		Logo: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(logoPNG)),
		Data: rec.Data,
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", &RenderError{Stage: "template", Err: err}
	}
	return buf.String(), nil
}

func templateName(typ record.FormType) string {
	switch typ {
	case record.TypeRejoining:
		return "rejoining.tmpl"
	case record.TypeLeaveExpats:
		return "leave_expats.tmpl"
	case record.TypeLeaveOmani:
		return "leave_omani.tmpl"
	}
	return ""
}

// Render produces the PDF bytes for a record.
func (r *Renderer) Render(ctx context.Context, rec record.Record) ([]byte, error) {
	start := time.Now()

	html, err := r.BuildHTML(rec)
	if err != nil {
		metrics.RecordPDFRender(string(rec.Type), "error", time.Since(start))
		return nil, err
	}

	buf, err := r.rasterize(ctx, html)
	if err != nil {
		metrics.RecordPDFRender(string(rec.Type), "error", time.Since(start))
		return nil, &RenderError{Stage: "rasterize", Err: err}
	}

	metrics.RecordPDFRender(string(rec.Type), "ok", time.Since(start))
	r.log.WithField("form_type", rec.Type).Infof("rendered %d byte pdf in %s", len(buf), time.Since(start))
	return buf, nil
}

func (r *Renderer) rasterize(ctx context.Context, html string) ([]byte, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Capturing before embedded fonts finish produces missing glyphs.
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, nil, awaitPromise),
		// Print medium so @media print rules shape the layout, not screen CSS.
		emulation.SetEmulatedMedia().WithMedia("print"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// Zero margins: every layout manages its own margins to match the
			// paper form pixel for pixel.
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
