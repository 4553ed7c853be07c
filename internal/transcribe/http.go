package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/session"
)

const (
	audioField      = "audio"
	maxResponseBody = 1 << 20
)

var errMissingTranscription = errors.New("response has no transcription field")

// HTTP uploads the artifact as a multipart form to the platform backend.
type HTTP struct {
	Endpoint string
	Client   *http.Client
	// Timeout bounds one upload; zero keeps the caller's deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

type successBody struct {
	Transcription *string `json:"transcription"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (h HTTP) Dispatch(ctx context.Context, artifact session.Artifact, credential string) (string, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	body, contentType, err := encodeArtifact(artifact)
	if err != nil {
		return "", failure.New(failure.NetworkFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, body)
	if err != nil {
		return "", failure.New(failure.NetworkFailure, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", failure.New(failure.NetworkFailure, fmt.Errorf("post %s: %w", artifact.Filename, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", failure.New(failure.NetworkFailure, fmt.Errorf("read response: %w", err))
	}

	if h.Logger != nil {
		h.Logger.Debug("transcription response",
			"session_id", artifact.SessionID,
			"status", resp.StatusCode,
			"bytes_sent", artifact.Size(),
			"latency_ms", time.Since(started).Milliseconds(),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", serverError(resp.StatusCode, raw)
	}

	var parsed successBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", failure.New(failure.MalformedResponse, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Transcription == nil {
		return "", failure.New(failure.MalformedResponse, errMissingTranscription)
	}
	return strings.TrimSpace(*parsed.Transcription), nil
}

func encodeArtifact(artifact session.Artifact) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := artifact.Filename
	if filename == "" {
		filename = "recording.bin"
	}
	part, err := writer.CreatePart(formFileHeader(filename, artifact.MIMEType))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func formFileHeader(filename string, mimeType string) textproto.MIMEHeader {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, audioField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimeType)
	return h
}

// serverError prefers the server's message and falls back to the status.
func serverError(status int, raw []byte) error {
	var parsed errorBody
	_ = json.Unmarshal(raw, &parsed)

	detail := strings.TrimSpace(parsed.Message)
	if detail == "" {
		detail = strings.TrimSpace(parsed.Error)
	}
	if detail == "" {
		detail = fmt.Sprintf("Failed to transcribe audio (Status: %d)", status)
	}
	return &failure.Error{
		Kind:   failure.ServerError,
		Detail: detail,
		Err:    fmt.Errorf("http status %d", status),
	}
}
