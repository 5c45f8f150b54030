package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// RenderInput is the structured payload handed to the renderer.
type RenderInput struct {
	DocType  Type
	Number   string
	OrderID  string
	Customer RenderCustomer
	Lines    []RenderLine
}

type RenderCustomer struct {
	Name  string
	Phone string
	Email string
}

type RenderLine struct {
	SKU       string
	Name      string
	Qty       float64
	UnitPrice float64
}

// Renderer turns a structured payload into artifact bytes. HTML/CSS layout
// lives behind this boundary.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) ([]byte, error)
}

// BlobStore persists rendered bytes and returns a retrievable key.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// EventSink receives fire-and-forget notifications about artifact outcomes.
type EventSink interface {
	Notify(ctx context.Context, event string, fields map[string]string)
}

// PDFShellRenderer emits a minimal single-page PDF without external
// dependencies. Good enough for dev and tests; production swaps in a real
// renderer behind the same interface.
type PDFShellRenderer struct{}

func (PDFShellRenderer) Render(_ context.Context, in RenderInput) ([]byte, error) {
	parts := []string{
		fmt.Sprintf("%s %s", in.DocType, in.Number),
		fmt.Sprintf("Order %s", in.OrderID),
	}
	if in.Customer.Name != "" {
		parts = append(parts, "Customer: "+in.Customer.Name)
	}
	for _, l := range in.Lines {
		parts = append(parts, fmt.Sprintf("%s %s x%.2f @ %.2f", l.SKU, l.Name, l.Qty, l.UnitPrice))
	}

	content := fmt.Sprintf("BT /F1 10 Tf 40 780 Td (%s) Tj ET", pdfEscape(strings.Join(parts, " | ")))

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, 0, 5)
	obj := func(s string) {
		offsets = append(offsets, b.Len())
		b.WriteString(s)
	}
	obj("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	obj("2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n")
	obj("3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >> endobj\n")
	obj(fmt.Sprintf("4 0 obj << /Length %d >> stream\n%s\nendstream endobj\n", len(content), content))
	obj("5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n")

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer << /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return []byte(b.String()), nil
}

func pdfEscape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)", "\n", " ")
	return r.Replace(s)
}

// DirBlobStore writes artifacts under a local directory. Keys are slash
// separated and sanitized to stay below the root.
type DirBlobStore struct {
	Root string
}

func (d *DirBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %s", key)
	}
	return filepath.Join(d.Root, clean), nil
}

func (d *DirBlobStore) Save(_ context.Context, key string, data []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (d *DirBlobStore) Load(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// LogSink logs events instead of delivering webhooks.
type LogSink struct {
	Log *zap.Logger
}

func (s *LogSink) Notify(_ context.Context, event string, fields map[string]string) {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.String(k, v))
	}
	s.Log.Info(event, zf...)
}
