// Package notion exports rendered PDF documents to Notion through the
// export-to-notion remote function.
package notion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/easeaico/studio-memory/internal/functions"
	"github.com/felixgeelhaar/bolt/v3"
	"github.com/samber/oops"
)

// FunctionName is the remote function that performs the export.
const FunctionName = "export-to-notion"

// FallbackMessage is used when the remote function reports an error without
// a message.
const FallbackMessage = "Failed to export to Notion"

// Error codes attached to errors returned by this package.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeExportFailed    = "notion_export_failed"
)

// Invoker calls a named remote function.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error)
}

// ExportRequest is the payload sent to the export function.
type ExportRequest struct {
	PDFBase64   string `json:"pdfBase64"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Validate checks that the PDF is valid base64 and the title is not blank.
func (r ExportRequest) Validate() error {
	if r.PDFBase64 == "" {
		return oops.Code(CodeInvalidArgument).New("pdfBase64 is required")
	}
	if _, err := base64.StdEncoding.DecodeString(r.PDFBase64); err != nil {
		return oops.Code(CodeInvalidArgument).Wrapf(err, "pdfBase64 is not valid base64")
	}
	if strings.TrimSpace(r.Title) == "" {
		return oops.Code(CodeInvalidArgument).New("title is required")
	}
	return nil
}

// Exporter sends export requests. It holds no mutable state and is safe for
// concurrent use; concurrent exports are not coordinated or de-duplicated.
type Exporter struct {
	invoker Invoker
	log     *bolt.Logger
}

// NewExporter creates an Exporter using invoker for the remote call.
func NewExporter(invoker Invoker, log *bolt.Logger) *Exporter {
	return &Exporter{invoker: invoker, log: log}
}

// ExportToNotion forwards req to the export function and returns its data
// unchanged. A remote-reported error becomes a new error carrying the remote
// message (or FallbackMessage); any other failure is returned as is. Each
// failure is logged once. The call is made at most once.
func (e *Exporter) ExportToNotion(ctx context.Context, req ExportRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, err := e.invoker.Invoke(ctx, FunctionName, req)
	if err == nil {
		return data, nil
	}

	var fnErr *functions.Error
	if errors.As(err, &fnErr) {
		msg := fnErr.Message
		if msg == "" {
			msg = FallbackMessage
		}
		e.log.Error().Err(err).Str("title", req.Title).Int("status", fnErr.Status).Msg("error exporting to notion")
		return nil, oops.Code(CodeExportFailed).New(msg)
	}

	e.log.Error().Err(err).Str("title", req.Title).Msg("error exporting to notion")
	return nil, err
}

// ExportFile reads the PDF at path, encodes it and exports it.
func (e *Exporter) ExportFile(ctx context.Context, path, title, description string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		return nil, oops.Code(CodeInvalidArgument).Errorf("%s is not a PDF document", path)
	}

	return e.ExportToNotion(ctx, ExportRequest{
		PDFBase64:   base64.StdEncoding.EncodeToString(raw),
		Title:       title,
		Description: description,
	})
}
