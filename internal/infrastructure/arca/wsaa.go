package arca

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca/credentials"
)

type loginCmsRequest struct {
	XMLName xml.Name `xml:"ns:loginCms"`
	In0     string   `xml:"ns:in0"` // CMS en Base64
}

type loginCmsResponse struct {
	XMLName xml.Name `xml:"loginCmsResponse"`
	Return  string   `xml:"loginCmsReturn"`
}

// AcquireToken firma un TRA con el certificado de la empresa y lo canjea en LoginCms por token + sign.
func (c *Client) AcquireToken(ctx context.Context, req TokenRequest) (entity.AuthToken, error) {
	certData, err := c.reader.ReadBytes(ctx, req.CertPath)
	if err != nil {
		return entity.AuthToken{}, fmt.Errorf("wsaa: leer certificado: %w", err)
	}
	var keyData []byte
	if strings.TrimSpace(req.KeyPath) != "" {
		if keyData, err = c.reader.ReadBytes(ctx, req.KeyPath); err != nil {
			return entity.AuthToken{}, fmt.Errorf("wsaa: leer llave: %w", err)
		}
	}
	cert, key, err := credentials.LoadPair(certData, keyData)
	if err != nil {
		return entity.AuthToken{}, fmt.Errorf("wsaa: %w", err)
	}

	tra, err := BuildTRA(ServiceWSFE, c.now())
	if err != nil {
		return entity.AuthToken{}, err
	}
	cms, err := SignTRA(tra, cert, key)
	if err != nil {
		return entity.AuthToken{}, err
	}

	var resp loginCmsResponse
	body := &loginCmsRequest{In0: base64.StdEncoding.EncodeToString(cms)}
	if err := c.call(ctx, c.wsaaURL(req), wsaaNS, "", "loginCms", body, &resp); err != nil {
		return entity.AuthToken{}, err
	}
	return parseLoginTicketResponse(resp.Return)
}

// parseLoginTicketResponse extrae token, sign y expirationTime del loginTicketResponse.
func parseLoginTicketResponse(ticket string) (entity.AuthToken, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(ticket)); err != nil {
		return entity.AuthToken{}, fmt.Errorf("wsaa: parsear loginTicketResponse: %w", err)
	}
	text := func(path string) string {
		if el := doc.FindElement(path); el != nil {
			return strings.TrimSpace(el.Text())
		}
		return ""
	}

	tok := entity.AuthToken{
		Token: text("//credentials/token"),
		Sign:  text("//credentials/sign"),
	}
	if tok.IsZero() {
		return entity.AuthToken{}, fmt.Errorf("wsaa: loginTicketResponse sin token o sign")
	}
	exp, err := time.Parse(time.RFC3339Nano, text("//header/expirationTime"))
	if err != nil {
		return entity.AuthToken{}, fmt.Errorf("wsaa: expirationTime inválido: %w", err)
	}
	tok.ExpiresAt = exp
	return tok, nil
}
