package arca

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/infrastructure/storage"
)

// ── Cliente ───────────────────────────────────────────────────────────────────

// Config endpoints opcionales (sobrescriben los del entorno) y timeout de red.
type Config struct {
	WSAAURL string
	WSFEURL string
	Timeout time.Duration
}

// Client implementa Authority contra WSAA y WSFEv1 usando net/http y encoding/xml.
type Client struct {
	httpClient *http.Client
	reader     storage.Reader
	cfg        Config
	now        func() time.Time
}

var _ Authority = (*Client)(nil)

// NewClient construye el cliente. reader se usa para leer certificado y llave del WSAA.
// Timeout por defecto 60 s: el WSFE de homologación suele tardar varios segundos.
func NewClient(reader storage.Reader, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		reader:     reader,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (c *Client) wsaaURL(req TokenRequest) string {
	switch {
	case req.Endpoint != "":
		return req.Endpoint
	case c.cfg.WSAAURL != "":
		return c.cfg.WSAAURL
	default:
		return WSAAEndpoint(req.Environment)
	}
}

func (c *Client) wsfeURL(auth Auth) string {
	if c.cfg.WSFEURL != "" {
		return c.cfg.WSFEURL
	}
	return WSFEEndpoint(auth.Environment)
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"soapenv:Envelope"`
	XmlnsS  string     `xml:"xmlns:soapenv,attr"`
	XmlnsNS string     `xml:"xmlns:ns,attr"`
	Header  struct{}   `xml:"soapenv:Header"`
	Body    soapBodyIn `xml:"soapenv:Body"`
}

type soapBodyIn struct {
	Content any
}

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Fault *soapFault `xml:"Fault"`
	Inner []byte     `xml:",innerxml"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// call envía el cuerpo SOAP y desempaqueta el contenido de <Body> en out.
// Un SOAP Fault vuelve como *AuthorityError.
func (c *Client) call(ctx context.Context, url, namespace, action, operation string, body, out any) error {
	envelope := soapEnvelope{
		XmlnsS:  soapNS,
		XmlnsNS: namespace,
		Body:    soapBodyIn{Content: body},
	}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("soap: serializar envelope %s: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return fmt.Errorf("soap: crear request %s: %w", operation, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+action+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("soap: %s: timeout o cancelación: %w", operation, ctx.Err())
		}
		return fmt.Errorf("soap: %s: llamada HTTP fallida: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return fmt.Errorf("soap: %s: leer respuesta: %w", operation, err)
	}

	var env soapResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("soap: %s: respuesta no es SOAP (HTTP %d): %w", operation, resp.StatusCode, err)
	}
	if f := env.Body.Fault; f != nil {
		return &AuthorityError{Operation: operation, Code: f.FaultCode, Message: f.FaultString}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("soap: %s: HTTP %d", operation, resp.StatusCode)
	}
	if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
		return fmt.Errorf("soap: %s: respuesta inesperada: %w", operation, err)
	}
	return nil
}
