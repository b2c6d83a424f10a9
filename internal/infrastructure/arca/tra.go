package arca

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/ucarion/c14n"
	"go.mozilla.org/pkcs7"
)

// ventana del TRA alrededor de now; ARCA rechaza generationTime futuros por desfasaje de reloj.
const traWindow = 10 * time.Minute

const traTimeLayout = "2006-01-02T15:04:05-07:00"

// BuildTRA genera el Ticket de Requerimiento de Acceso (loginTicketRequest) canonicalizado.
func BuildTRA(service string, now time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(strconv.FormatUint(uint64(uuid.New().ID()), 10))
	header.CreateElement("generationTime").SetText(now.Add(-traWindow).Format(traTimeLayout))
	header.CreateElement("expirationTime").SetText(now.Add(traWindow).Format(traTimeLayout))
	root.CreateElement("service").SetText(service)

	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("wsaa: serializar TRA: %w", err)
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("wsaa: canonicalizar TRA: %w", err)
	}
	return out, nil
}

// SignTRA firma el TRA como CMS SignedData (contenido incluido, SHA-256) en DER.
func SignTRA(tra []byte, cert *x509.Certificate, key crypto.Signer) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(tra)
	if err != nil {
		return nil, fmt.Errorf("wsaa: preparar CMS: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("wsaa: firmar TRA: %w", err)
	}
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("wsaa: cerrar CMS: %w", err)
	}
	return der, nil
}
