package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/lysyi3m/bid-comb/app/bid"
)

type Options struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	SubjectPrefix string
	Location      *time.Location
}

type sendFunc func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error

// Mailer delivers one digest email per call over SMTP.
type Mailer struct {
	addr     string
	implicit bool
	auth     sasl.Client
	from     *mail.Address
	renderer *Renderer
	send     sendFunc
	now      func() time.Time
}

func New(opts Options) (*Mailer, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from, err := mail.ParseAddress(opts.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", opts.From, err)
	}

	port := opts.Port
	if port == 0 {
		port = 587
	}

	m := &Mailer{
		addr:     net.JoinHostPort(opts.Host, strconv.Itoa(port)),
		implicit: port == 465,
		from:     from,
		renderer: NewRenderer(opts.SubjectPrefix, opts.Location),
		now:      time.Now,
	}
	if opts.Username != "" {
		m.auth = sasl.NewPlainClient("", opts.Username, opts.Password)
	}
	if m.implicit {
		m.send = smtp.SendMailTLS
	} else {
		m.send = smtp.SendMail
	}

	return m, nil
}

// Send renders entries into a single digest for recipient and returns the
// Message-ID as the provider message id.
func (m *Mailer) Send(ctx context.Context, recipient string, entries []bid.DigestEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("empty digest for %s", recipient)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := m.now()
	digest, err := m.renderer.Run(entries, now)
	if err != nil {
		return "", err
	}

	msg, messageID, err := Compose(m.from, recipient, digest, now)
	if err != nil {
		return "", err
	}

	start := time.Now()
	if err := m.send(m.addr, m.auth, m.from.Address, []string{recipient}, bytes.NewReader(msg)); err != nil {
		return "", fmt.Errorf("smtp delivery to %s failed: %w", recipient, err)
	}

	slog.Debug("Digest sent", "recipient", recipient, "notices", len(entries), "message_id", messageID, "duration", time.Since(start))

	return messageID, nil
}

// Compose builds a multipart/alternative RFC 5322 message.
func Compose(from *mail.Address, recipient string, digest Digest, now time.Time) ([]byte, string, error) {
	to, err := mail.ParseAddress(recipient)
	if err != nil {
		return nil, "", fmt.Errorf("invalid recipient address %q: %w", recipient, err)
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(digest.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", digest.Text},
		{"text/html", digest.HTML},
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := w.CreatePart(ph)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			pw.Close()
			return nil, "", fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close %s part: %w", part.contentType, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), "<" + messageID + ">", nil
}
